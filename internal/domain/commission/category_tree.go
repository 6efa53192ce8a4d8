package commission

import "fmt"

// CategoryTree answers how deep a category sits in the catalog hierarchy (roots are 0)
type CategoryTree interface {
	Depth(categoryID string) (int, bool)
}

// StaticCategoryTree is a parent map loaded at boot
type StaticCategoryTree struct {
	depths map[string]int
}

// NewStaticCategoryTree computes depths from a child to parent map. Empty parent means root.
func NewStaticCategoryTree(parents map[string]string) (*StaticCategoryTree, error) {
	depths := make(map[string]int, len(parents))
	for id := range parents {
		d, err := walkDepth(id, parents)
		if err != nil {
			return nil, err
		}
		depths[id] = d
	}
	return &StaticCategoryTree{depths: depths}, nil
}

func walkDepth(id string, parents map[string]string) (int, error) {
	depth := 0
	seen := map[string]bool{id: true}
	for current := parents[id]; current != ""; current = parents[current] {
		if seen[current] {
			return 0, fmt.Errorf("category %s has a cyclic parent chain", id)
		}
		seen[current] = true
		depth++
	}
	return depth, nil
}

// Depth implements CategoryTree
func (t *StaticCategoryTree) Depth(categoryID string) (int, bool) {
	if t == nil {
		return 0, false
	}
	d, ok := t.depths[categoryID]
	return d, ok
}
