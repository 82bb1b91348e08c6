package lsp

import (
	"strings"

	"github.com/optimumenergyco/sorbet/internal/core"
)

// The file mirror maps editor URIs onto the interned file table. Every
// mapping is rooted at the rootUri captured during initialize; before
// initialize (or with an empty rootUri) every URI resolves to the null
// FileRef and the operation is dropped.

// insideRoot reports whether the URI lives under the registered rootUri.
func (l *Loop) insideRoot(uri string) bool {
	return l.rootURI != "" && strings.HasPrefix(uri, l.rootURI+"/")
}

// remoteToLocal strips the rootUri prefix, yielding a workspace-relative
// path. Callers check insideRoot first.
func (l *Loop) remoteToLocal(uri string) string {
	return uri[len(l.rootURI)+1:]
}

// localToRemote prefixes a workspace-relative path with the rootUri.
func (l *Loop) localToRemote(path string) string {
	return l.rootURI + "/" + path
}

// uriToFileRef resolves a URI to its FileRef, or the null ref for URIs
// outside the workspace or paths never entered.
func (l *Loop) uriToFileRef(uri string) core.FileRef {
	if !l.insideRoot(uri) {
		return 0
	}
	return l.initialGS.FindFileByPath(l.remoteToLocal(uri))
}

// fileRefToURI renders a ref as a URI: rootUri-qualified for Normal files,
// bare path for Payload stubs.
func (l *Loop) fileRefToURI(fref core.FileRef) string {
	file := l.finalGS.File(fref)
	if file.Type == core.Payload {
		return file.Path
	}
	return l.localToRemote(file.Path)
}
