package lang

import "github.com/smacker/go-tree-sitter/cpp"

func init() {
	Languages["cpp"] = &Language{
		Name:             "cpp",
		Extensions:       []string{".cc", ".cpp", ".cxx", ".c++"},
		HeaderExtensions: []string{".hh", ".hpp", ".hxx", ".h++", ".inl", ".ipp"},
		lang:             cpp.GetLanguage(),
	}
}
