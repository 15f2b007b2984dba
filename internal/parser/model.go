package parser

// --- Enums ---

// Language identifies a programming language for parsing.
type Language string

const (
	LangPython     Language = "python"
	LangJava       Language = "java"
	LangKotlin     Language = "kotlin"
	LangC          Language = "c"
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangRust       Language = "rust"
)

// ClassKind classifies class-like declarations across languages.
type ClassKind string

const (
	ClassKindClass     ClassKind = "class"
	ClassKindStruct    ClassKind = "struct"
	ClassKindInterface ClassKind = "interface"
	ClassKindObject    ClassKind = "object"
	ClassKindEnum      ClassKind = "enum"
)

// --- Unified code model ---

// SourceRange is a 1-based inclusive line range.
type SourceRange struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

// Variable is a named, optionally typed slot: a parameter or a field.
type Variable struct {
	Name         string `json:"name"`
	DeclaredType string `json:"declaredType,omitempty"`
}

// Parameter is a function parameter.
type Parameter = Variable

// Field is a class or struct attribute.
type Field = Variable

// FunctionLike is a function, method, or constructor.
type FunctionLike struct {
	Name string `json:"name"`
	// QualifiedName is set on top-level functions bound to a type declared
	// elsewhere ("Store.Close" for a Go method, "String.shout" for a Kotlin
	// extension). Empty means Name.
	QualifiedName string      `json:"qualifiedName,omitempty"`
	Parameters    []Parameter `json:"parameters,omitempty"`
	ReturnType    string      `json:"returnType,omitempty"`
	Modifiers     []string    `json:"modifiers,omitempty"`
	Range         SourceRange `json:"range"`
	// CallSites holds callee names in first-seen order, de-duplicated.
	// They are not resolved; the graph builder matches them by name.
	CallSites []string `json:"callSites,omitempty"`
}

// FullName returns QualifiedName, falling back to Name.
func (f FunctionLike) FullName() string {
	if f.QualifiedName != "" {
		return f.QualifiedName
	}
	return f.Name
}

// ClassLike is a class, struct, interface, object, or enum.
type ClassLike struct {
	Name string `json:"name"`
	// QualifiedName distinguishes nested declarations ("Outer.Inner").
	// Empty means Name.
	QualifiedName string         `json:"qualifiedName,omitempty"`
	Kind          ClassKind      `json:"kind"`
	Attributes    []Field        `json:"attributes,omitempty"`
	Methods       []FunctionLike `json:"methods,omitempty"`
	Superclass    string         `json:"superclass,omitempty"`
	Interfaces    []string       `json:"interfaces,omitempty"`
	Modifiers     []string       `json:"modifiers,omitempty"`
	Range         SourceRange    `json:"range"`
}

// FullName returns QualifiedName, falling back to Name.
func (c ClassLike) FullName() string {
	if c.QualifiedName != "" {
		return c.QualifiedName
	}
	return c.Name
}

// ImportRef is one imported module or header.
type ImportRef struct {
	ModulePath string `json:"modulePath"`
	Alias      string `json:"alias,omitempty"`
}

// Diagnostic records a problem found while parsing a file.
type Diagnostic struct {
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// ParseResult is the language-neutral structure extracted from one file.
type ParseResult struct {
	FilePath    string         `json:"filePath"`
	Language    Language       `json:"language"`
	LOC         int            `json:"loc"`
	Classes     []ClassLike    `json:"classes"`
	Functions   []FunctionLike `json:"functions"` // top-level only
	Imports     []ImportRef    `json:"imports"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`
}

// Empty reports whether no structure was extracted.
func (r *ParseResult) Empty() bool {
	return len(r.Classes) == 0 && len(r.Functions) == 0 && len(r.Imports) == 0
}
