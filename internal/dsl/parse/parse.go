// Package parse implements the recursive-descent parser (component C):
// it consumes the token stream produced by internal/dsl/lex and builds
// the semantic model defined in internal/dsl/ast, following the grammar
// in §4.C of the specification.
//
// Lookahead discipline: every point where an optional clause might be
// absent because a physical line has simply ended (e.g. "-> target"
// with no trailing ": code") checks lex.Lexer.AtLineEnd before calling
// Peek/Next. That keeps the one-token lookahead buffer from ever
// crossing into the next physical line when a real token isn't there -
// which would otherwise make the following ExpectIndent/CheckDedent
// call (which reads the lexer's raw position, bypassing the buffer)
// look at the wrong line.
package parse

import (
	"strings"

	"github.com/dekarrin/harel/internal/dsl/ast"
	"github.com/dekarrin/harel/internal/dsl/lex"
	"github.com/dekarrin/harel/internal/dslerr"
)

// Parser holds the parsing state for a single DSL source.
type Parser struct {
	lx     *lex.Lexer
	peeked *lex.Token
	nextID int
}

// New creates a Parser over already-extracted DSL text.
func New(src string) *Parser {
	return &Parser{lx: lex.New(src)}
}

// Parse extracts nothing further (the caller is expected to have already
// run internal/dsl/extract) and parses src into a Spec.
func Parse(src string) (*ast.Spec, error) {
	return New(src).ParseSpec()
}

func (p *Parser) allocID() int {
	id := p.nextID
	p.nextID++
	return id
}

func (p *Parser) next() (lex.Token, error) {
	if p.peeked != nil {
		t := *p.peeked
		p.peeked = nil
		return t, nil
	}
	return p.lx.NextToken()
}

func (p *Parser) peek() (lex.Token, error) {
	if p.peeked == nil {
		t, err := p.lx.NextToken()
		if err != nil {
			return lex.Token{}, err
		}
		p.peeked = &t
	}
	return *p.peeked, nil
}

func (p *Parser) expect(k lex.Kind) (lex.Token, error) {
	t, err := p.next()
	if err != nil {
		return t, err
	}
	if t.Kind != k {
		return t, dslerr.Syntax(toPos(t.Pos), "expected %s, found %s %q", k, t.Kind, t.Text)
	}
	return t, nil
}

func toPos(p lex.Position) dslerr.Position {
	return dslerr.Position{Line: p.Line, Col: p.Col}
}

// ParseSpec parses the top-level `{machine|constant|import}* EOF` rule.
func (p *Parser) ParseSpec() (*ast.Spec, error) {
	spec := &ast.Spec{}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case lex.EOF:
			return spec, nil
		case lex.MACHINE:
			m, err := p.parseMachine()
			if err != nil {
				return nil, err
			}
			spec.Items = append(spec.Items, m)
		case lex.IMPORT:
			p.next()
			text := p.lx.RestOfLine()
			spec.Items = append(spec.Items, &ast.Import{Text: text, Pos: toPos(tok.Pos)})
		case lex.NAME:
			p.next()
			if _, err := p.expect(lex.EQUALS); err != nil {
				return nil, err
			}
			expr := p.lx.RestOfLine()
			spec.Items = append(spec.Items, &ast.Constant{Name: tok.Text, Expr: expr, Pos: toPos(tok.Pos)})
		default:
			return nil, dslerr.Syntax(toPos(tok.Pos), "expected 'machine', 'import', or a constant declaration, found %s", tok.Kind)
		}
	}
}

func (p *Parser) parseMachine() (*ast.Machine, error) {
	tok, err := p.next() // MACHINE
	if err != nil {
		return nil, err
	}
	nameTok, err := p.expect(lex.NAME)
	if err != nil {
		return nil, err
	}

	superclass := ""
	if !p.lx.AtLineEnd() {
		t, err := p.peek()
		if err != nil {
			return nil, err
		}
		if t.Kind == lex.LPAREN {
			p.next()
			baseTok, err := p.expect(lex.NAME)
			if err != nil {
				return nil, err
			}
			superclass = baseTok.Text
			if _, err := p.expect(lex.RPAREN); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(lex.COLON); err != nil {
		return nil, err
	}
	p.lx.EndLine()

	m := ast.NewMachine(nameTok.Text, superclass, toPos(tok.Pos))
	m.ID = p.allocID()

	if err := p.lx.ExpectIndent(); err != nil {
		return nil, err
	}

	var curRegion []*ast.State
	for {
		dedent, err := p.lx.CheckDedent()
		if err != nil {
			return nil, err
		}
		if dedent {
			break
		}

		t, err := p.peek()
		if err != nil {
			return nil, err
		}
		switch t.Kind {
		case lex.ENTER:
			code, err := p.parseCodeClause()
			if err != nil {
				return nil, err
			}
			m.Enter = code
		case lex.EXIT:
			code, err := p.parseCodeClause()
			if err != nil {
				return nil, err
			}
			m.Exit = code
		case lex.AND:
			p.next()
			p.lx.EndLine()
			if len(curRegion) > 0 {
				m.Regions = append(m.Regions, curRegion)
				curRegion = nil
			}
		case lex.STAR, lex.STATE:
			st, err := p.parseStateDecl(m, m.State, len(m.Regions))
			if err != nil {
				return nil, err
			}
			curRegion = append(curRegion, st)
		case lex.NAME:
			tr, err := p.parseTransition(m, m.State)
			if err != nil {
				return nil, err
			}
			m.Transitions = append(m.Transitions, tr)
		default:
			return nil, dslerr.Syntax(toPos(t.Pos), "unexpected %s in machine body", t.Kind)
		}
	}
	if len(curRegion) > 0 {
		m.Regions = append(m.Regions, curRegion)
	}
	return m, nil
}

func (p *Parser) parseStateDecl(m *ast.Machine, parent *ast.State, regionIdx int) (*ast.State, error) {
	start := false
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.Kind == lex.STAR {
		p.next()
		start = true
	}
	if _, err := p.expect(lex.STATE); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(lex.NAME)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lex.COLON); err != nil {
		return nil, err
	}
	p.lx.EndLine()

	st := &ast.State{
		ID:          p.allocID(),
		Name:        nameTok.Text,
		Start:       start,
		Parent:      parent,
		RegionIndex: regionIdx,
		Pos:         toPos(tok.Pos),
	}

	if err := p.lx.ExpectIndent(); err != nil {
		return nil, err
	}

	var curRegion []*ast.State
	for {
		dedent, err := p.lx.CheckDedent()
		if err != nil {
			return nil, err
		}
		if dedent {
			break
		}

		t, err := p.peek()
		if err != nil {
			return nil, err
		}
		switch t.Kind {
		case lex.ENTER:
			code, err := p.parseCodeClause()
			if err != nil {
				return nil, err
			}
			st.Enter = code
		case lex.EXIT:
			code, err := p.parseCodeClause()
			if err != nil {
				return nil, err
			}
			st.Exit = code
		case lex.PASS:
			p.next()
			p.lx.EndLine()
		case lex.AND:
			p.next()
			p.lx.EndLine()
			if len(curRegion) > 0 {
				st.Regions = append(st.Regions, curRegion)
				curRegion = nil
			}
		case lex.STAR, lex.STATE:
			child, err := p.parseStateDecl(m, st, len(st.Regions))
			if err != nil {
				return nil, err
			}
			curRegion = append(curRegion, child)
		case lex.MS, lex.S:
			to, err := p.parseTimeout(m, st)
			if err != nil {
				return nil, err
			}
			st.Timeouts = append(st.Timeouts, to)
		case lex.LBRACKET, lex.ARROW:
			tr, err := p.parseDefaultTransition(m, st)
			if err != nil {
				return nil, err
			}
			st.Transitions = append(st.Transitions, tr)
		case lex.NAME:
			tr, err := p.parseTransition(m, st)
			if err != nil {
				return nil, err
			}
			st.Transitions = append(st.Transitions, tr)
		default:
			return nil, dslerr.Syntax(toPos(t.Pos), "unexpected %s in state %q", t.Kind, st.Name)
		}
	}
	if len(curRegion) > 0 {
		st.Regions = append(st.Regions, curRegion)
	}
	return st, nil
}

func (p *Parser) parseCodeClause() ([]string, error) {
	if _, err := p.next(); err != nil { // ENTER or EXIT
		return nil, err
	}
	if _, err := p.expect(lex.COLON); err != nil {
		return nil, err
	}
	return p.parseCodeBody()
}

// parseCodeBody implements the `code` rule: either the rest of the
// current line, or an indented block of raw lines.
func (p *Parser) parseCodeBody() ([]string, error) {
	if p.lx.AtLineEnd() {
		p.lx.EndLine()
		return p.parseIndentedCodeLines()
	}
	return []string{p.lx.RestOfLine()}, nil
}

func (p *Parser) parseIndentedCodeLines() ([]string, error) {
	if err := p.lx.ExpectIndent(); err != nil {
		return nil, err
	}
	base := p.lx.IndentTop()
	var lines []string
	for {
		dedent, err := p.lx.CheckDedent()
		if err != nil {
			return nil, err
		}
		if dedent {
			break
		}
		lines = append(lines, p.lx.ReadCodeLine(base))
	}
	return lines, nil
}

// parseTransition implements the `transition` rule: an event-triggered
// handler, with or without a target.
func (p *Parser) parseTransition(m *ast.Machine, owner *ast.State) (*ast.Transition, error) {
	nameTok, err := p.expect(lex.NAME)
	if err != nil {
		return nil, err
	}

	tr := &ast.Transition{Owner: owner, Event: nameTok.Text, Pos: toPos(nameTok.Pos)}

	if !p.lx.AtLineEnd() {
		t, err := p.peek()
		if err != nil {
			return nil, err
		}
		if t.Kind == lex.LPAREN {
			p.next()
			params, err := p.parseNameList()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lex.RPAREN); err != nil {
				return nil, err
			}
			tr.Params = params
		}
	}

	for !p.lx.AtLineEnd() {
		t, err := p.peek()
		if err != nil {
			return nil, err
		}
		if t.Kind != lex.IS {
			break
		}
		p.next()
		superTok, err := p.expect(lex.NAME)
		if err != nil {
			return nil, err
		}
		sup := ast.EventSuper{Name: superTok.Text}
		if !p.lx.AtLineEnd() {
			t, err := p.peek()
			if err != nil {
				return nil, err
			}
			if t.Kind == lex.LPAREN {
				p.next()
				args, err := p.parseNameList()
				if err != nil {
					return nil, err
				}
				if _, err := p.expect(lex.RPAREN); err != nil {
					return nil, err
				}
				sup.Args = args
			}
		}
		tr.Supers = append(tr.Supers, sup)
	}

	if !p.lx.AtLineEnd() {
		t, err := p.peek()
		if err != nil {
			return nil, err
		}
		if t.Kind == lex.LBRACKET {
			p.next()
			cond, err := p.lx.ReadBalanced('[', ']')
			if err != nil {
				return nil, err
			}
			tr.HasCondition = true
			tr.Condition = strings.TrimSpace(cond)
		}
	}

	if p.lx.AtLineEnd() {
		return nil, dslerr.Syntax(tr.Pos, "transition for event %q must have a '->' target or ':' body", tr.Event)
	}
	t, err := p.next()
	if err != nil {
		return nil, err
	}
	switch t.Kind {
	case lex.ARROW:
		up, down, err := p.parseTargetPath()
		if err != nil {
			return nil, err
		}
		tr.UpCount, tr.DownPath = up, down
		if !p.lx.AtLineEnd() {
			if _, err := p.expect(lex.COLON); err != nil {
				return nil, err
			}
			code, err := p.parseCodeBody()
			if err != nil {
				return nil, err
			}
			tr.Code = code
		} else {
			p.lx.EndLine()
		}
	case lex.COLON:
		tr.Internal = true
		if p.lx.AtLineEnd() {
			p.lx.EndLine()
			lines, err := p.parseIndentedCodeLines()
			if err != nil {
				return nil, err
			}
			tr.Code = lines
		} else {
			line := p.lx.RestOfLine()
			if line == "pass" {
				tr.IsPass = true
			} else {
				tr.Code = []string{line}
			}
		}
	default:
		return nil, dslerr.Syntax(toPos(t.Pos), "expected '->' or ':', found %s", t.Kind)
	}

	m.RegisterEvent(tr.Event, tr.Params)
	return tr, nil
}

// parseDefaultTransition implements `default_transition`: an
// event-less, immediate transition evaluated on state entry.
func (p *Parser) parseDefaultTransition(m *ast.Machine, owner *ast.State) (*ast.Transition, error) {
	pos, err := p.peek()
	if err != nil {
		return nil, err
	}
	tr := &ast.Transition{Owner: owner, Pos: toPos(pos.Pos)}

	if pos.Kind == lex.LBRACKET {
		p.next()
		cond, err := p.lx.ReadBalanced('[', ']')
		if err != nil {
			return nil, err
		}
		tr.HasCondition = true
		tr.Condition = strings.TrimSpace(cond)
	}
	if _, err := p.expect(lex.ARROW); err != nil {
		return nil, err
	}
	up, down, err := p.parseTargetPath()
	if err != nil {
		return nil, err
	}
	tr.UpCount, tr.DownPath = up, down

	if !p.lx.AtLineEnd() {
		if _, err := p.expect(lex.COLON); err != nil {
			return nil, err
		}
		code, err := p.parseCodeBody()
		if err != nil {
			return nil, err
		}
		tr.Code = code
	} else {
		p.lx.EndLine()
	}

	return tr, nil
}

// parseTimeout implements the `timeout`/`time_spec` rules.
func (p *Parser) parseTimeout(m *ast.Machine, owner *ast.State) (*ast.Timeout, error) {
	scaleTok, err := p.next() // MS or S
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lex.LPAREN); err != nil {
		return nil, err
	}
	expr, err := p.lx.ReadBalanced('(', ')')
	if err != nil {
		return nil, err
	}

	to := &ast.Timeout{
		Owner:     owner,
		Scale:     scaleTok.Text,
		ValueExpr: strings.TrimSpace(expr),
		Pos:       toPos(scaleTok.Pos),
	}

	if !p.lx.AtLineEnd() {
		t, err := p.peek()
		if err != nil {
			return nil, err
		}
		if t.Kind == lex.LBRACKET {
			p.next()
			cond, err := p.lx.ReadBalanced('[', ']')
			if err != nil {
				return nil, err
			}
			to.HasCondition = true
			to.Condition = strings.TrimSpace(cond)
		}
	}

	if !p.lx.AtLineEnd() {
		t, err := p.peek()
		if err != nil {
			return nil, err
		}
		if t.Kind == lex.ARROW {
			p.next()
			up, down, err := p.parseTargetPath()
			if err != nil {
				return nil, err
			}
			to.HasTarget = true
			to.UpCount, to.DownPath = up, down
		}
	}

	if !p.lx.AtLineEnd() {
		if _, err := p.expect(lex.COLON); err != nil {
			return nil, err
		}
		code, err := p.parseCodeBody()
		if err != nil {
			return nil, err
		}
		to.Code = code
	} else {
		p.lx.EndLine()
	}

	return to, nil
}

func (p *Parser) parseTargetPath() (int, []string, error) {
	up := 0
	for {
		t, err := p.peek()
		if err != nil {
			return 0, nil, err
		}
		if t.Kind != lex.UP {
			break
		}
		p.next()
		up++
	}
	// one or more "^" up-markers are followed by a "." separator before
	// the first path component, e.g. "^.b" or "^^.b.c"; a target with no
	// up-markers starts directly with the name.
	if up > 0 {
		if _, err := p.expect(lex.DOT); err != nil {
			return 0, nil, err
		}
	}
	nameTok, err := p.expect(lex.NAME)
	if err != nil {
		return 0, nil, err
	}
	down := []string{nameTok.Text}
	for !p.lx.AtLineEnd() {
		t, err := p.peek()
		if err != nil {
			return 0, nil, err
		}
		if t.Kind != lex.DOT {
			break
		}
		p.next()
		nt, err := p.expect(lex.NAME)
		if err != nil {
			return 0, nil, err
		}
		down = append(down, nt.Text)
	}
	return up, down, nil
}

func (p *Parser) parseNameList() ([]string, error) {
	var names []string
	t, err := p.peek()
	if err != nil {
		return nil, err
	}
	if t.Kind == lex.RPAREN {
		return names, nil
	}
	nt, err := p.expect(lex.NAME)
	if err != nil {
		return nil, err
	}
	names = append(names, nt.Text)
	for {
		t, err := p.peek()
		if err != nil {
			return nil, err
		}
		if t.Kind != lex.COMMA {
			break
		}
		p.next()
		nt, err := p.expect(lex.NAME)
		if err != nil {
			return nil, err
		}
		names = append(names, nt.Text)
	}
	return names, nil
}
