// Package preproc is a preprocessing front-end built on tree-sitter. It walks
// a translation unit and its includes in document order and reports
// directives, conditional tests, macro expansions and inclusions through
// Callbacks.
//
// It is not a conforming C preprocessor: macro bodies are not rescanned and
// conditions it cannot decide walk every branch.
package preproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/macroindex/internal/lang"
	"github.com/phobologic/macroindex/internal/logging"
	"github.com/phobologic/macroindex/internal/model"
	"github.com/phobologic/macroindex/internal/parse"
	"github.com/phobologic/macroindex/internal/pathcache"
)

// CommandLine is the buffer name of predefined macros.
const CommandLine = "<command line>"

// DefaultMaxIncludeDepth bounds nested inclusion.
const DefaultMaxIncludeDepth = 200

// ErrAlreadyRun is returned by a second call to Run.
var ErrAlreadyRun = errors.New("preproc: preprocessor already run")

// Callbacks receives preprocessing events in document order.
type Callbacks interface {
	InclusionDirective(hash model.Position, spelled string, file *model.FileEntry)
	// FileNotFound reports a failed include lookup. Returning true lets
	// the front-end try recovery.
	FileNotFound(spelled string) bool
	Ifdef(pos model.Position, tok model.Token, def model.MacroDefinition)
	Ifndef(pos model.Position, tok model.Token, def model.MacroDefinition)
	Defined(tok model.Token, def model.MacroDefinition)
	MacroExpands(tok model.Token, def model.MacroDefinition)
	MacroDefined(tok model.Token, directive model.DirectiveID)
	MacroUndefined(tok model.Token, def model.MacroDefinition, undef model.DirectiveID)
	EndOfMainFile()
}

// Config controls include resolution and predefined macros.
type Config struct {
	IncludeDirs  []string
	SystemDirs   []string
	RecoveryDirs []string
	// Defines maps macro names to values, as given with -D.
	Defines         map[string]string
	MaxIncludeDepth int
	// MaxFileSize skips larger files; zero means no limit.
	MaxFileSize int64
}

// Stats counts what one pass did.
type Stats struct {
	Files           int
	Directives      int
	Expansions      int
	IncludeFailures int
	SkippedGuarded  int
	SkippedCycles   int
	SkippedDepth    int
}

type source struct {
	path   string
	system bool
	src    []byte
	tree   *sitter.Tree
	guard  string
	once   bool
	seen   bool
	err    error
}

type frame struct {
	file     *source
	dirIndex int // index into the search path, -1 when found elsewhere
}

// Preprocessor runs one pass over one translation unit. It is not safe for
// concurrent use.
type Preprocessor struct {
	cfg    Config
	lang   *lang.Language
	parser *sitter.Parser
	guards *sitter.Query
	paths  *pathcache.Cache
	log    logging.Logger

	hist   *History
	cb     Callbacks
	files  map[string]*source
	stack  []frame
	search []string
	nsys   int // search[len(search)-nsys:] are system dirs
	stats  Stats
	ran    bool
}

// New returns a preprocessor for language l.
func New(cfg Config, l *lang.Language, paths *pathcache.Cache, log logging.Logger) (*Preprocessor, error) {
	if l == nil {
		return nil, errors.New("preproc: no language")
	}
	if paths == nil {
		return nil, errors.New("preproc: no path cache")
	}
	q, err := l.GetGuardQuery()
	if err != nil {
		return nil, fmt.Errorf("preproc: %s guard query: %w", l.Name, err)
	}
	if log == nil {
		log = logging.Nop()
	}
	if cfg.MaxIncludeDepth <= 0 {
		cfg.MaxIncludeDepth = DefaultMaxIncludeDepth
	}
	p := &Preprocessor{
		cfg:    cfg,
		lang:   l,
		parser: l.NewParser(),
		guards: q,
		paths:  paths,
		log:    log,
		hist:   NewHistory(),
		files:  make(map[string]*source),
	}
	p.search = append(p.search, absDirs(cfg.IncludeDirs)...)
	sys := absDirs(cfg.SystemDirs)
	p.search = append(p.search, sys...)
	p.nsys = len(sys)
	return p, nil
}

func absDirs(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if abs, err := filepath.Abs(d); err == nil {
			out = append(out, abs)
		}
	}
	return out
}

// Run preprocesses mainFile, sending events to cb. An error means the pass
// did not complete and EndOfMainFile was not sent.
func (p *Preprocessor) Run(ctx context.Context, mainFile string, cb Callbacks) error {
	if p.ran {
		return ErrAlreadyRun
	}
	p.ran = true
	p.cb = cb
	defer p.closeTrees()

	abs, err := filepath.Abs(mainFile)
	if err != nil {
		return fmt.Errorf("preproc: %w", err)
	}
	main := p.load(ctx, abs, false)
	if main.err != nil {
		return fmt.Errorf("preproc: main file: %w", main.err)
	}

	p.predefine()
	if err := p.enter(ctx, frame{file: main, dirIndex: -1}); err != nil {
		return err
	}
	p.cb.EndOfMainFile()
	return nil
}

func (p *Preprocessor) predefine() {
	names := make([]string, 0, len(p.cfg.Defines))
	for name := range p.cfg.Defines {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		pos := model.Position{File: CommandLine, Line: i + 1, Column: len("#define ") + 1}
		id, _ := p.hist.Define(name, pos, p.cfg.Defines[name], false)
		p.cb.MacroDefined(model.Token{Name: name, Pos: pos}, id)
	}
}

func (p *Preprocessor) closeTrees() {
	for _, f := range p.files {
		if f.tree != nil {
			f.tree.Close()
			f.tree = nil
		}
	}
}

// load reads and parses path once per pass.
func (p *Preprocessor) load(ctx context.Context, path string, system bool) *source {
	if f, ok := p.files[path]; ok {
		return f
	}
	f := &source{path: filepath.ToSlash(path), system: system}
	p.files[path] = f

	info, err := os.Stat(path)
	switch {
	case err != nil:
		f.err = err
		return f
	case !info.Mode().IsRegular():
		f.err = fmt.Errorf("%s: not a regular file", path)
		return f
	case p.cfg.MaxFileSize > 0 && info.Size() > p.cfg.MaxFileSize:
		f.err = fmt.Errorf("%s: %d bytes exceeds limit", path, info.Size())
		return f
	}
	f.src, err = os.ReadFile(path)
	if err != nil {
		f.err = err
		return f
	}
	tree, err := parse.Parse(ctx, p.parser, f.src)
	if errors.Is(err, parse.ErrEmpty) {
		return f
	}
	if err != nil {
		f.err = err
		return f
	}
	f.tree = tree
	f.guard = parse.HeaderGuard(p.guards, tree.RootNode(), f.src)
	return f
}

func (p *Preprocessor) enter(ctx context.Context, fr frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f := fr.file
	switch {
	case len(p.stack) > p.cfg.MaxIncludeDepth:
		p.stats.SkippedDepth++
		p.log.Warn("preproc: include depth %d exceeded at %s", p.cfg.MaxIncludeDepth, f.path)
		return nil
	case p.onStack(f):
		p.stats.SkippedCycles++
		p.log.Warn("preproc: include cycle at %s", f.path)
		return nil
	case f.once && f.seen:
		return nil
	case f.seen && f.guard != "" && p.hist.IsDefined(f.guard):
		p.stats.SkippedGuarded++
		return nil
	}

	f.seen = true
	p.stats.Files++
	p.log.Debug("preproc: entering %s", f.path)
	p.stack = append(p.stack, fr)
	defer func() { p.stack = p.stack[:len(p.stack)-1] }()

	if f.tree == nil {
		return nil
	}
	w := &walker{Preprocessor: p, ctx: ctx, file: f, src: f.src}
	if err := w.walkChildren(f.tree.RootNode()); err != nil {
		return err
	}
	if f.guard != "" && p.hist.MarkHeaderGuard(f.guard) {
		p.log.Debug("preproc: %s guards %s", f.guard, f.path)
	}
	return nil
}

func (p *Preprocessor) onStack(f *source) bool {
	for _, fr := range p.stack {
		if fr.file == f {
			return true
		}
	}
	return false
}

// resolve looks up an include. dirIndex is the search path entry the file
// was found in, or -1.
func (p *Preprocessor) resolve(ctx context.Context, name string, angled, next bool) (*source, int, bool) {
	cur := p.stack[len(p.stack)-1]
	if filepath.IsAbs(name) {
		f := p.load(ctx, filepath.Clean(name), false)
		return f, -1, f.err == nil
	}

	start := 0
	if next {
		start = cur.dirIndex + 1
	} else if !angled {
		dir := filepath.Dir(filepath.FromSlash(cur.file.path))
		if f := p.load(ctx, filepath.Join(dir, name), cur.file.system); f.err == nil {
			return f, -1, true
		}
	}
	for i := start; i < len(p.search); i++ {
		system := i >= len(p.search)-p.nsys
		if f := p.load(ctx, filepath.Join(p.search[i], name), system); f.err == nil {
			return f, i, true
		}
	}
	return nil, -1, false
}

func (p *Preprocessor) recoverInclude(ctx context.Context, name string) (*source, bool) {
	for _, dir := range p.cfg.RecoveryDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if f := p.load(ctx, filepath.Join(abs, name), false); f.err == nil {
			return f, true
		}
	}
	return nil, false
}

// Stats returns the counters of the last pass.
func (p *Preprocessor) Stats() Stats { return p.stats }

// Directive implements macros.DirectiveTable.
func (p *Preprocessor) Directive(id model.DirectiveID) (model.Directive, bool) {
	return p.hist.Directive(id)
}

// IsHeaderGuard implements macros.MacroLookup against the final macro table.
func (p *Preprocessor) IsHeaderGuard(name string) bool { return p.hist.IsHeaderGuard(name) }

// IsDefined implements macros.MacroLookup.
func (p *Preprocessor) IsDefined(name string) bool { return p.hist.IsDefined(name) }

// Resolve implements macros.SourceLocations. Positions outside real files
// do not resolve.
func (p *Preprocessor) Resolve(pos model.Position) (model.FilePathID, model.LineColumn, bool) {
	if !pos.IsFile() {
		return 0, model.LineColumn{}, false
	}
	return p.paths.FilePathID(pos.File), model.LineColumn{Line: pos.Line, Column: pos.Column}, true
}

// FilePathID implements macros.FileIdentities.
func (p *Preprocessor) FilePathID(path string) model.FilePathID {
	return p.paths.FilePathID(path)
}

// walker visits the tree of one file.
type walker struct {
	*Preprocessor
	ctx  context.Context
	file *source
	src  []byte
}

func (w *walker) token(node *sitter.Node) model.Token {
	pos := parse.Pos(w.file.path, node)
	pos.System = w.file.system
	return model.Token{Name: parse.NodeText(node, w.src), Pos: pos}
}

func (w *walker) pos(node *sitter.Node) model.Position {
	pos := parse.Pos(w.file.path, node)
	pos.System = w.file.system
	return pos
}

func (w *walker) walkChildren(node *sitter.Node) error {
	for i := 0; i < int(node.ChildCount()); i++ {
		if err := w.walk(node.Child(i)); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) walkNodes(nodes []*sitter.Node) error {
	for _, n := range nodes {
		if err := w.walk(n); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) walk(node *sitter.Node) error {
	if node == nil {
		return nil
	}
	switch node.Type() {
	case "preproc_include":
		w.stats.Directives++
		return w.include(node, node.ChildByFieldName("path"), false)
	case "preproc_def", "preproc_function_def":
		w.stats.Directives++
		w.define(node)
		return nil
	case "preproc_call":
		w.stats.Directives++
		return w.call(node)
	case "preproc_ifdef":
		w.stats.Directives++
		return w.ifdef(node)
	case "preproc_if":
		w.stats.Directives++
		return w.branch(node, w.eval(node.ChildByFieldName("condition")))
	case "comment", "string_literal", "raw_string_literal", "char_literal",
		"system_lib_string", "preproc_arg", "number_literal":
		return nil
	case "identifier", "type_identifier", "field_identifier", "namespace_identifier":
		w.expand(node)
		return nil
	}
	return w.walkChildren(node)
}

func (w *walker) define(node *sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	var val string
	if v := node.ChildByFieldName("value"); v != nil {
		val = lang.CollapseWhitespace(parse.NodeText(v, w.src))
	}
	tok := w.token(nameNode)
	id, _ := w.hist.Define(tok.Name, tok.Pos, val, node.Type() == "preproc_function_def")
	w.cb.MacroDefined(tok, id)
}

func (w *walker) call(node *sitter.Node) error {
	dn := node.ChildByFieldName("directive")
	if dn == nil {
		return nil
	}
	directive := "#" + strings.TrimSpace(strings.TrimPrefix(parse.NodeText(dn, w.src), "#"))
	arg := node.ChildByFieldName("argument")

	switch directive {
	case "#undef":
		tok, ok := w.argToken(arg)
		if !ok {
			return nil
		}
		before, id := w.hist.Undefine(tok.Name)
		w.cb.MacroUndefined(tok, before, id)
	case "#pragma":
		if arg != nil && strings.TrimSpace(parse.NodeText(arg, w.src)) == "once" {
			w.file.once = true
		}
	case "#include_next":
		return w.include(node, arg, true)
	case "#import":
		w.file.once = true
		return w.include(node, arg, false)
	}
	return nil
}

// argToken returns the leading identifier of a directive argument.
func (w *walker) argToken(arg *sitter.Node) (model.Token, bool) {
	if arg == nil {
		return model.Token{}, false
	}
	text := parse.NodeText(arg, w.src)
	start := 0
	for start < len(text) && (text[start] == ' ' || text[start] == '\t') {
		start++
	}
	end := start
	for end < len(text) && isIdentByte(text[end], end == start) {
		end++
	}
	if end == start {
		return model.Token{}, false
	}
	pos := w.pos(arg)
	pos.Offset += start
	pos.Column += start
	return model.Token{Name: text[start:end], Pos: pos}, true
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', c >= 0x80:
		return true
	case '0' <= c && c <= '9':
		return !first
	}
	return false
}

func (w *walker) ifdef(node *sitter.Node) error {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil || node.ChildCount() == 0 {
		return w.branch(node, unknown)
	}
	tok := w.token(nameNode)
	def := w.hist.Lookup(tok.Name)
	pos := w.pos(node)
	switch d := node.Child(0).Type(); d {
	case "#ifdef", "#elifdef":
		w.cb.Ifdef(pos, tok, def)
		return w.branch(node, truth(def.IsDefined()))
	case "#ifndef", "#elifndef":
		w.cb.Ifndef(pos, tok, def)
		return w.branch(node, truth(!def.IsDefined()))
	}
	return w.branch(node, unknown)
}

// branch walks the body of a conditional block when cond may be true and
// its alternative when cond may be false.
func (w *walker) branch(node *sitter.Node, cond value) error {
	if !cond.isFalse() {
		if err := w.walkNodes(parse.BodyChildren(node, "name", "condition", "alternative")); err != nil {
			return err
		}
	}
	if cond.isTrue() {
		return nil
	}
	alt := node.ChildByFieldName("alternative")
	if alt == nil {
		return nil
	}
	switch alt.Type() {
	case "preproc_else":
		return w.walkNodes(parse.BodyChildren(alt))
	case "preproc_elif":
		return w.branch(alt, w.eval(alt.ChildByFieldName("condition")))
	case "preproc_elifdef":
		return w.ifdef(alt)
	}
	return nil
}

func (w *walker) expand(node *sitter.Node) {
	def := w.hist.Lookup(parse.NodeText(node, w.src))
	if !def.IsDefined() {
		return
	}
	if def.Info.FunctionLike && !isCallee(node) {
		return
	}
	w.expands(node, def)
}

func (w *walker) expands(node *sitter.Node, def model.MacroDefinition) {
	w.stats.Expansions++
	w.cb.MacroExpands(w.token(node), def)
}

func isCallee(node *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil || parent.Type() != "call_expression" {
		return false
	}
	return parse.SameNode(parent.ChildByFieldName("function"), node)
}

const maxIncludeExpansion = 16

// include handles #include, #include_next and #import. target is the path
// node or directive argument.
func (w *walker) include(node, target *sitter.Node, next bool) error {
	if target == nil {
		return nil
	}
	hash := w.pos(node)
	spelled := strings.TrimSpace(parse.NodeText(target, w.src))

	// #include MACRO expands through object-like macro values.
	if target.Type() == "identifier" || (target.Type() == "preproc_arg" && isMacroName(spelled)) {
		tok := w.token(target)
		tok.Name = spelled
		for i := 0; isMacroName(spelled); i++ {
			def := w.hist.Lookup(spelled)
			if !def.IsDefined() || def.Info.FunctionLike || i == maxIncludeExpansion {
				w.log.Warn("preproc: %s:%d: cannot expand include %s", w.file.path, hash.Line, spelled)
				return nil
			}
			w.stats.Expansions++
			w.cb.MacroExpands(tok, def)
			spelled = strings.TrimSpace(def.Info.Value)
			tok.Name = spelled
		}
	}

	name, angled, ok := splitInclude(spelled)
	if !ok {
		w.log.Warn("preproc: %s:%d: malformed include %s", w.file.path, hash.Line, spelled)
		return nil
	}

	if f, dirIndex, found := w.resolve(w.ctx, name, angled, next); found {
		w.cb.InclusionDirective(hash, spelled, &model.FileEntry{Path: f.path, System: f.system})
		return w.enter(w.ctx, frame{file: f, dirIndex: dirIndex})
	}

	w.stats.IncludeFailures++
	w.log.Warn("preproc: %s:%d: %s not found", w.file.path, hash.Line, spelled)
	if !w.cb.FileNotFound(spelled) {
		return nil
	}
	w.cb.InclusionDirective(hash, spelled, nil)
	if f, found := w.recoverInclude(w.ctx, name); found {
		w.log.Info("preproc: recovered %s as %s", spelled, f.path)
		w.cb.InclusionDirective(hash, spelled, &model.FileEntry{Path: f.path, System: f.system})
		return w.enter(w.ctx, frame{file: f, dirIndex: -1})
	}
	return nil
}

func isMacroName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i], i == 0) {
			return false
		}
	}
	return true
}

// splitInclude parses "name" or <name>.
func splitInclude(spelled string) (name string, angled, ok bool) {
	if len(spelled) < 3 {
		return "", false, false
	}
	switch first, last := spelled[0], spelled[len(spelled)-1]; {
	case first == '"' && last == '"':
		return spelled[1 : len(spelled)-1], false, true
	case first == '<' && last == '>':
		return spelled[1 : len(spelled)-1], true, true
	}
	return "", false, false
}
