// Package runnable implements the runnable metadata payload carried by a
// Metadata pack: the command, args, and environment needed to invoke a
// script's real interpreter, plus the template language used to turn
// those descriptions into concrete OS strings at runtime.
package runnable

// Format is the metadata format identifier recognized by this repo's
// runtime.
const Format = "application/vnd.brioche.runnable-v0.1.0+json"

// TemplateComponentKind selects a Template component's variant.
type TemplateComponentKind int

const (
	ComponentLiteral TemplateComponentKind = iota
	ComponentRelativePath
	ComponentResource
)

// TemplateComponent is one piece of a Template: a literal byte string, a
// path relative to the running stub's parent directory, or a resource
// subpath resolved against the resource-dir search list.
type TemplateComponent struct {
	Kind  TemplateComponentKind
	Value []byte
}

// Template is an ordered sequence of components evaluated into a single
// OS string at runtime (see Evaluate in template.go).
type Template struct {
	Components []TemplateComponent
}

// LiteralTemplate returns a Template consisting of a single literal
// component, or an empty Template if value is empty.
func LiteralTemplate(value []byte) Template {
	if len(value) == 0 {
		return Template{}
	}
	return Template{Components: []TemplateComponent{{Kind: ComponentLiteral, Value: value}}}
}

// ResourceTemplate returns a Template consisting of a single resource
// reference.
func ResourceTemplate(resourceSubpath string) Template {
	return Template{Components: []TemplateComponent{{Kind: ComponentResource, Value: []byte(resourceSubpath)}}}
}

// ArgKind selects an ArgValue's variant.
type ArgKind int

const (
	ArgLiteral ArgKind = iota
	ArgRest
)

// ArgValue is one entry of a Runnable's argument list: either a template
// to evaluate, or the Rest marker splicing the stub's received argv tail.
// At most one Rest marker may appear in a Runnable's Args.
type ArgValue struct {
	Kind  ArgKind
	Value Template // meaningful only when Kind == ArgLiteral
}

// EnvKind selects an EnvValue's variant.
type EnvKind int

const (
	EnvClear EnvKind = iota
	EnvInherit
	EnvSet
	EnvFallback
	EnvPrepend
	EnvAppend
)

// EnvValue describes how a single environment variable should be
// populated; see the env staging algorithm (stageEnv in
// internal/runtimeexec) for how these are combined.
type EnvValue struct {
	Kind      EnvKind
	Value     Template // Set, Fallback, Prepend, Append
	Separator []byte   // Prepend, Append only
}

// EnvPair is one (name, value) entry of a Runnable's ordered env list.
type EnvPair struct {
	Name  string
	Value EnvValue
}

// RunnablePathKind selects a RunnablePath's variant.
type RunnablePathKind int

const (
	RunnablePathRelative RunnablePathKind = iota
	RunnablePathResource
)

// RunnablePath references a file either relative to the running stub, or
// as a resource subpath.
type RunnablePath struct {
	Kind  RunnablePathKind
	Value []byte
}

// ResourceRunnablePath returns a RunnablePath referencing a resource
// subpath.
func ResourceRunnablePath(resourceSubpath string) RunnablePath {
	return RunnablePath{Kind: RunnablePathResource, Value: []byte(resourceSubpath)}
}

// RunnableSource names the logical source a Runnable was built from, so a
// repack pass on an already-packed file can locate and re-derive it.
type RunnableSource struct {
	Path RunnablePath `json:"path"`
}

// Runnable is the payload of a Metadata pack whose Format is runnable.Format.
type Runnable struct {
	Command      Template
	Args         []ArgValue
	Env          []EnvPair
	ClearEnv     bool
	Dependencies []RunnablePath
	Source       *RunnableSource
}
