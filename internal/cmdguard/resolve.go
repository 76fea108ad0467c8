// Package cmdguard decides whether a remote command line may be executed,
// based on its base command and the allowed command set.
package cmdguard

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/ppiankov/safezone/internal/model"
	"github.com/ppiankov/safezone/internal/policy"
)

// chainTokens are rejected anywhere in the raw line, quoted or not.
var chainTokens = []string{";", "&&", "||", "`", "$(", "|"}

// Resolve evaluates req against the allowed commands in store.
//
// Evaluation order:
//  1. Empty line
//  2. Raw chaining/substitution scan
//  3. Shell parse: exactly one simple command, no redirects or substitutions
//  4. Backslash in the command word
//  5. Base command lookup (case-sensitive)
//
// Arguments are never inspected.
func Resolve(store *policy.Store, req model.CommandRequest) model.CommandVerdict {
	line := strings.TrimSpace(req.Command)
	if line == "" {
		return deny(model.ReasonEmptyCommand, "", req.Host)
	}

	for _, tok := range chainTokens {
		if strings.Contains(line, tok) {
			return deny(model.ReasonShellMetacharacterRejected, "", req.Host)
		}
	}

	call, reason := singleCall(line)
	if reason != model.ReasonNone {
		return deny(reason, "", req.Host)
	}

	// "FOO=1 git status" is not "git status".
	if len(call.Assigns) > 0 || len(call.Args) == 0 {
		return deny(model.ReasonCommandNotWhitelisted, strings.Fields(line)[0], req.Host)
	}

	first, ok := literal(call.Args[0])
	if !ok {
		return deny(model.ReasonCommandNotWhitelisted, strings.Fields(line)[0], req.Host)
	}
	// The remote shell unescapes "\\": evi\ls runs evils, not ls.
	if strings.ContainsRune(first, '\\') {
		return deny(model.ReasonShellMetacharacterRejected, "", req.Host)
	}
	base := BaseName(first)
	if base == "" || !store.AllowsCommand(base) {
		return deny(model.ReasonCommandNotWhitelisted, base, req.Host)
	}

	return model.CommandVerdict{Decision: model.Allow, BaseCommand: base, Host: req.Host}
}

// BaseName reduces a command token to its final path component:
// "/usr/bin/git" -> "git".
func BaseName(token string) string {
	if i := strings.LastIndexByte(token, '/'); i >= 0 {
		return token[i+1:]
	}
	return token
}

// singleCall parses line as bash and returns its only simple command.
// Anything else (lists, pipelines, background jobs, compound commands,
// redirections, substitutions) is a metacharacter rejection.
func singleCall(line string) (*syntax.CallExpr, model.Reason) {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(line), "")
	if err != nil {
		return nil, model.ReasonShellMetacharacterRejected
	}

	switch len(file.Stmts) {
	case 0:
		// Only a comment, e.g. "# ls".
		return nil, model.ReasonEmptyCommand
	case 1:
	default:
		return nil, model.ReasonShellMetacharacterRejected
	}

	stmt := file.Stmts[0]
	if stmt.Background || stmt.Coprocess || stmt.Negated || len(stmt.Redirs) > 0 {
		return nil, model.ReasonShellMetacharacterRejected
	}
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok {
		return nil, model.ReasonShellMetacharacterRejected
	}

	unsafe := false
	syntax.Walk(call, func(node syntax.Node) bool {
		switch node.(type) {
		case *syntax.CmdSubst, *syntax.ProcSubst:
			unsafe = true
			return false
		}
		return !unsafe
	})
	if unsafe {
		return nil, model.ReasonShellMetacharacterRejected
	}
	return call, model.ReasonNone
}

// literal returns the word's value when it is built only from plain and
// quoted literal parts, so "git", 'git' and "g"it all yield git.
func literal(word *syntax.Word) (string, bool) {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			if p.Dollar {
				return "", false
			}
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			if p.Dollar {
				return "", false
			}
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", false
				}
				sb.WriteString(lit.Value)
			}
		default:
			return "", false
		}
	}
	return sb.String(), true
}

func deny(reason model.Reason, base, host string) model.CommandVerdict {
	return model.CommandVerdict{Decision: model.Deny, Reason: reason, BaseCommand: base, Host: host}
}
