// Package repos builds the flat repo inventory — (index, name, path)
// triples — that the gateway's /repo command lets users select by a
// stable, typable index. Directory scanning itself sits outside the
// conversational control plane's core, but something has to populate the
// inventory for /repo to do anything.
package repos

import (
	"os"
	"path/filepath"
	"sort"
)

// Repo is one inventory entry.
type Repo struct {
	Index int
	Name  string
	Path  string
}

// Inventory is the stable, ordered list of known repos.
type Inventory struct {
	repos []Repo
}

// Scan walks root up to maxDepth levels looking for directories containing
// a ".git" entry, building a stable-sorted inventory.
func Scan(root string, maxDepth int) (*Inventory, error) {
	var found []Repo
	root = filepath.Clean(root)

	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		if depth > maxDepth {
			return nil
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		isRepo := false
		for _, e := range entries {
			if e.Name() == ".git" {
				isRepo = true
				break
			}
		}
		if isRepo {
			found = append(found, Repo{Name: filepath.Base(dir), Path: dir})
			return nil
		}
		for _, e := range entries {
			if e.IsDir() && !isHidden(e.Name()) {
				_ = walk(filepath.Join(dir, e.Name()), depth+1)
			}
		}
		return nil
	}
	if err := walk(root, 0); err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	for i := range found {
		found[i].Index = i
	}
	return &Inventory{repos: found}, nil
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}

// All returns the full inventory in stable order.
func (inv *Inventory) All() []Repo {
	if inv == nil {
		return nil
	}
	out := make([]Repo, len(inv.repos))
	copy(out, inv.repos)
	return out
}

// ByIndex looks up a repo by its stable numeric index.
func (inv *Inventory) ByIndex(i int) (Repo, bool) {
	if inv == nil || i < 0 || i >= len(inv.repos) {
		return Repo{}, false
	}
	return inv.repos[i], true
}

// ByName looks up a repo by case-sensitive display name.
func (inv *Inventory) ByName(name string) (Repo, bool) {
	if inv == nil {
		return Repo{}, false
	}
	for _, r := range inv.repos {
		if r.Name == name {
			return r, true
		}
	}
	return Repo{}, false
}
