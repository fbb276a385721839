package convert

import (
	"encoding/json"
	"fmt"
)

// Listener is a callback function that receives events during a conversion.
type Listener func(fmt.Stringer)

func jsonString(v any) string {
	b, _ := json.Marshal(map[string]any{
		fmt.Sprintf("%T", v): v,
	})
	return string(b)
}

// EventSourceFound is emitted for every source variant selected for conversion.
type EventSourceFound struct {
	URL          string `json:"url,omitempty"`
	Architecture string `json:"architecture,omitempty"`
}

func (e EventSourceFound) String() string { return jsonString(e) }

// EventKnowledgeBaseLoad is emitted once the knowledge base has been looked for.
type EventKnowledgeBaseLoad struct {
	Path    string `json:"path,omitempty"`
	Missing bool   `json:"missing,omitempty"`
}

func (e EventKnowledgeBaseLoad) String() string { return jsonString(e) }

// EventPackageFetched is emitted when a .deb is available and extracted in the cache.
type EventPackageFetched struct {
	URL  string `json:"url,omitempty"`
	Root string `json:"root,omitempty"`
}

func (e EventPackageFetched) String() string { return jsonString(e) }

// EventRecipeAssembled is emitted when the recipe is complete, before any file is written.
type EventRecipeAssembled struct {
	Package  string `json:"package,omitempty"`
	Version  string `json:"version,omitempty"`
	Flags    int    `json:"flags,omitempty"`
	Warnings int    `json:"warnings,omitempty"`
}

func (e EventRecipeAssembled) String() string { return jsonString(e) }

// EventFileWritten is emitted for every output file.
type EventFileWritten struct {
	Path   string `json:"path,omitempty"`
	Signed bool   `json:"signed,omitempty"`
}

func (e EventFileWritten) String() string { return jsonString(e) }
