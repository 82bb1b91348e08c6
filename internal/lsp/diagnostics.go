package lsp

import (
	"github.com/optimumenergyco/sorbet/internal/core"
	"github.com/optimumenergyco/sorbet/internal/pipeline"
)

// silenceError reports whether a diagnostic class is suppressed in
// interactive mode. These three fire constantly on half-typed edits and
// drown real findings.
func silenceError(code int) bool {
	switch code {
	case pipeline.ErrRedefinitionOfMethod,
		pipeline.ErrDuplicateVariableDeclaration,
		pipeline.ErrRedefinitionOfParents:
		return true
	}
	return false
}

// drainErrors moves queued diagnostics into the per-file accumulator and
// records which files have publications pending. Files whose slot is now a
// tombstone are garbage-collected from the accumulator.
func (l *Loop) drainErrors() {
	for _, e := range l.queue.DrainErrors() {
		if silenceError(e.Code) {
			continue
		}
		file := e.Loc.File
		l.errorsAccumulated[file] = append(l.errorsAccumulated[file], e)

		// dedup against the immediately previous entry only; repeated
		// publications for a file later in the batch are allowed
		if len(l.updatedErrors) > 0 && l.updatedErrors[len(l.updatedErrors)-1] == file {
			continue
		}
		l.updatedErrors = append(l.updatedErrors, file)
	}

	for file := range l.errorsAccumulated {
		if l.initialGS.File(file).Type == core.TombStone {
			delete(l.errorsAccumulated, file)
		}
	}
}

// invalidateAllErrors wipes the accumulator before a slow path.
func (l *Loop) invalidateAllErrors() {
	l.errorsAccumulated = make(map[core.FileRef][]*core.PendingError)
	l.updatedErrors = nil
}

// invalidateErrorsFor drops accumulated diagnostics for a fast-path subset
// and queues those files for republication, so a file whose errors just
// vanished still publishes an empty set.
func (l *Loop) invalidateErrorsFor(refs []core.FileRef) {
	for _, fref := range refs {
		delete(l.errorsAccumulated, fref)
		if len(l.updatedErrors) > 0 && l.updatedErrors[len(l.updatedErrors)-1] == fref {
			continue
		}
		l.updatedErrors = append(l.updatedErrors, fref)
	}
}

// pushErrors drains the queue and emits one publishDiagnostics notification
// per pending file.
func (l *Loop) pushErrors() {
	l.drainErrors()

	for _, file := range l.updatedErrors {
		if !file.Exists() {
			continue
		}
		data := l.finalGS.File(file)

		var uri string
		if data.Type == core.Payload {
			uri = data.Path
		} else {
			uri = l.localToRemote(data.Path)
		}

		diagnostics := make([]Diagnostic, 0, len(l.errorsAccumulated[file]))
		for _, e := range l.errorsAccumulated[file] {
			diagnostics = append(diagnostics, l.toDiagnostic(e))
		}

		l.sendNotification(methodPublishDiagnostics, PublishDiagnosticsParams{
			URI:         uri,
			Diagnostics: diagnostics,
		})
	}
	l.updatedErrors = nil
}

// toDiagnostic converts a pending error, flattening complex-error sections
// into relatedInformation entries. A sub-line with no message of its own
// falls back to its section header.
func (l *Loop) toDiagnostic(e *core.PendingError) Diagnostic {
	d := Diagnostic{
		Range:   l.locToRange(e.Loc),
		Code:    e.Code,
		Message: e.Message,
	}
	for _, section := range e.Sections {
		for _, line := range section.Lines {
			message := line.Message
			if message == "" {
				message = section.Header
			}
			d.RelatedInformation = append(d.RelatedInformation, DiagnosticRelatedInformation{
				Location: l.locToLocation(line.Loc),
				Message:  message,
			})
		}
	}
	return d
}
