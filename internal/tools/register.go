package tools

import "github.com/Strob0t/ForgeAgent/internal/domain/tool"

// RegisterAll adds the full built-in tool set to the registry.
func RegisterAll(r *tool.Registry) {
	r.Register(ReadFile{})
	r.Register(ListFiles{})
	r.Register(SearchText{})
	r.Register(GitStatus{})
	r.Register(GitDiff{})
	r.Register(ApplyPatch{})
	r.Register(RunCommand{})
}
