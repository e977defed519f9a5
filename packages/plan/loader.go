package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitplan/packages/assertions"
	"github.com/abdul-hamid-achik/hitplan/packages/core/failure"
	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"github.com/abdul-hamid-achik/hitplan/packages/data"
	"github.com/abdul-hamid-achik/hitplan/packages/db"
	"github.com/abdul-hamid-achik/hitplan/packages/steps"
	"gopkg.in/yaml.v3"
)

// Extensions lists the file suffixes recognized as plans.
var Extensions = []string{".plan.yaml", ".plan.yml", ".hitplan"}

// Plan is a loaded plan file.
type Plan struct {
	Name      string
	File      string
	Variables map[string]any
	Root      *unit.Unit
	Document  *Document
}

type Loader struct {
	pool     *db.Pool
	database string
}

type LoaderOption func(*Loader)

// WithPool shares a database pool between the sql steps and sources of
// every plan the loader builds.
func WithPool(p *db.Pool) LoaderOption {
	return func(l *Loader) { l.pool = p }
}

// WithDatabase sets the connection string used by plans that declare none.
func WithDatabase(conn string) LoaderOption {
	return func(l *Loader) { l.database = conn }
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	if l.pool == nil {
		l.pool = db.NewPool()
	}
	return l
}

// Pool returns the database pool used by loaded plans.
func (l *Loader) Pool() *db.Pool { return l.pool }

// Load reads and builds the plan at path. Relative paths inside the plan
// resolve against its directory.
func (l *Loader) Load(path string) (*Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	name := filepath.Base(path)
	for _, ext := range Extensions {
		name = strings.TrimSuffix(name, ext)
	}
	p, err := l.parse(raw, filepath.Dir(path), name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.File = path
	return p, nil
}

// Parse decodes a plan document and builds its unit tree. An unnamed plan
// is called "plan".
func (l *Loader) Parse(raw []byte, baseDir string) (*Plan, error) {
	return l.parse(raw, baseDir, "plan")
}

func (l *Loader) parse(raw []byte, baseDir, fallbackName string) (*Plan, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		name := doc.Name
		if name == "" {
			name = fallbackName
		}
		return nil, failure.Configf(name, "invalid plan: %v", err)
	}
	if doc.Name == "" {
		doc.Name = fallbackName
	}

	database := doc.Database
	if database == "" {
		database = l.database
	}
	b := &builder{pool: l.pool, baseDir: baseDir, database: database}
	rootBuilder, err := b.unit(&doc.UnitSpec, doc.Name)
	if err != nil {
		return nil, err
	}
	root, err := rootBuilder.Build()
	if err != nil {
		return nil, err
	}
	return &Plan{Name: doc.Name, Variables: doc.Variables, Root: root, Document: &doc}, nil
}

type builder struct {
	pool     *db.Pool
	baseDir  string
	database string
}

func (b *builder) unit(spec *UnitSpec, path string) (*unit.Builder, error) {
	if spec.Name == "" {
		return nil, failure.Configf(path, "unit has no name")
	}
	ub := unit.NewBuilder(spec.Name).Description(spec.Description).Source(spec).Parallelism(spec.Parallel)

	if spec.ExpectError != "" {
		ub.Expect(unit.MessageContains(spec.ExpectError))
	}

	hooks := []struct {
		specs []StepSpec
		label string
		set   func(*unit.Builder) *unit.Builder
	}{
		{spec.Setup, "setup", ub.Setup},
		{spec.Cleanup, "cleanup", ub.Cleanup},
		{spec.BeforeEach, "before each", ub.BeforeChild},
		{spec.AfterEach, "after each", ub.AfterChild},
	}
	for _, h := range hooks {
		if err := b.hook(h.specs, spec.Name+" "+h.label, path, h.set); err != nil {
			return nil, err
		}
	}

	list, err := b.steps(spec.Steps, path)
	if err != nil {
		return nil, err
	}

	if spec.Data != nil {
		if len(spec.Units) > 0 {
			return nil, failure.Configf(path, "a data-driven unit cannot declare units")
		}
		return ub, b.data(ub, spec.Data, list, path)
	}
	if len(list) > 0 {
		ub.Steps(list...)
	}

	byName := make(map[string]*unit.Builder, len(spec.Units))
	children := make([]*unit.Builder, len(spec.Units))
	for i := range spec.Units {
		child := &spec.Units[i]
		cb, err := b.unit(child, path+" > "+child.Name)
		if err != nil {
			return nil, err
		}
		if _, dup := byName[child.Name]; dup {
			return nil, failure.Configf(path, "duplicate unit name %q", child.Name)
		}
		byName[child.Name] = cb
		children[i] = cb
	}
	for i := range spec.Units {
		for _, dep := range spec.Units[i].DependsOn {
			target, ok := byName[dep]
			if !ok {
				return nil, failure.Configf(spec.Units[i].Name, "depends on unknown sibling %q", dep)
			}
			children[i].DependsOn(target)
		}
	}
	if len(children) > 0 {
		ub.Child(children...)
	}
	return ub, nil
}

func (b *builder) hook(specs []StepSpec, label, path string, set func(*unit.Builder) *unit.Builder) error {
	if len(specs) == 0 {
		return nil
	}
	list, err := b.steps(specs, path)
	if err != nil {
		return err
	}
	set(unit.NewBuilder(label).Steps(list...))
	return nil
}

func (b *builder) data(ub *unit.Builder, spec *DataSpec, template []step.Step, path string) error {
	var provider unit.DataProvider
	sources := 0
	if spec.Rows != nil {
		sources++
		provider = data.Static(data.FromMaps(spec.Rows, nameKey(spec.NameKey))...)
	}
	if spec.JSON != nil {
		sources++
		provider = &data.JSONFile{File: b.path(spec.JSON.File), Path: spec.JSON.Path, NameKey: nameKey(spec.NameKey)}
	}
	if spec.SQL != nil {
		sources++
		provider = &data.Query{
			Pool:       b.pool,
			Database:   b.db(spec.SQL.Database),
			Statement:  spec.SQL.Query,
			NameColumn: nameKey(spec.NameKey),
		}
	}
	if sources != 1 {
		return failure.Configf(path, "data must declare exactly one of rows, json or sql")
	}

	ub.Rows(provider, template...).SharedContext(spec.Shared)
	if err := b.hook(spec.Setup, ub.Label()+" data setup", path, ub.DataSetup); err != nil {
		return err
	}
	return b.hook(spec.Cleanup, ub.Label()+" data cleanup", path, ub.DataCleanup)
}

func nameKey(k string) string {
	if k == "" {
		return "name"
	}
	return k
}

func (b *builder) steps(specs []StepSpec, path string) ([]step.Step, error) {
	out := make([]step.Step, 0, len(specs))
	for i := range specs {
		s, err := b.step(&specs[i])
		if err != nil {
			return nil, failure.Configf(path, "step %d: %v", i+1, err)
		}
		if specs[i].Quiet {
			s = steps.Quiet(s)
		}
		out = append(out, s)
	}
	return out, nil
}

func (b *builder) step(spec *StepSpec) (step.Step, error) {
	kinds := spec.kinds()
	switch len(kinds) {
	case 0:
		return nil, errors.New("no step kind given")
	case 1:
	default:
		return nil, fmt.Errorf("more than one step kind given: %s", strings.Join(kinds, ", "))
	}

	switch kinds[0] {
	case "shell":
		s := steps.NewShell(spec.Name, spec.Shell)
		s.Dir = b.baseDir
		if spec.Dir != "" {
			s.Dir = b.path(spec.Dir)
		}
		s.Capture = spec.Capture
		return s, nil
	case "set":
		return steps.NewSet(spec.Name, spec.Set), nil
	case "assert":
		checks, err := assertionsOf(spec.Assert)
		if err != nil {
			return nil, err
		}
		s := steps.NewAssert(spec.Name, checks...)
		s.BaseDir = b.baseDir
		return s, nil
	case "sql":
		checks, err := assertionsOf(spec.Checks)
		if err != nil {
			return nil, err
		}
		s := steps.NewSQL(spec.Name, b.pool, b.db(spec.Database), spec.SQL)
		s.Capture = spec.Capture
		s.Checks = checks
		return s, nil
	default:
		return b.waitFor(spec)
	}
}

func (b *builder) waitFor(spec *StepSpec) (step.Step, error) {
	w := steps.NewWaitFor(spec.Name, spec.WaitFor.URL)
	if spec.WaitFor.URL == "" {
		return nil, errors.New("waitFor requires a url")
	}
	if spec.WaitFor.Status != 0 {
		w.Status = spec.WaitFor.Status
	}
	var err error
	if spec.WaitFor.Timeout != "" {
		if w.Timeout, err = time.ParseDuration(spec.WaitFor.Timeout); err != nil {
			return nil, fmt.Errorf("invalid waitFor timeout: %w", err)
		}
	}
	if spec.WaitFor.Interval != "" {
		if w.Interval, err = time.ParseDuration(spec.WaitFor.Interval); err != nil {
			return nil, fmt.Errorf("invalid waitFor interval: %w", err)
		}
	}
	return w, nil
}

func assertionsOf(specs []CheckSpec) ([]assertions.Assertion, error) {
	out := make([]assertions.Assertion, len(specs))
	for i, c := range specs {
		op, err := assertions.ParseOperator(c.Op)
		if err != nil {
			return nil, fmt.Errorf("check %q: %w", c.Subject, err)
		}
		out[i] = assertions.Assertion{Subject: c.Subject, Operator: op, Expected: c.Value}
	}
	return out, nil
}

func (b *builder) db(conn string) string {
	if conn == "" {
		return b.database
	}
	return conn
}

func (b *builder) path(p string) string {
	if p == "" || filepath.IsAbs(p) || b.baseDir == "" {
		return p
	}
	return filepath.Join(b.baseDir, p)
}

// IsPlanFile reports whether path carries a plan extension.
func IsPlanFile(path string) bool {
	for _, ext := range Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Discover expands files and directories into the plan files they contain,
// in lexical order per argument.
func Discover(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", p, err)
		}
		if !info.IsDir() {
			if IsPlanFile(p) {
				files = append(files, p)
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && IsPlanFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
