package resolver

import _ "embed"

// templateProgram is the bundled reference resolver. It demonstrates the
// entry-point and IPC contract an operator-authored program must honor.
//
//go:embed template.py
var templateProgram []byte
