// Package invoker runs external tools on behalf of workflow steps. Every
// linter, installer and packaging tool is treated the same way: start the
// process, stream its output to the console, and turn its exit status into
// an error the orchestrator can act on.
package invoker
