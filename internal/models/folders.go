package models

import "sort"

// FolderNode is one entry in a FolderGraph. Relations are held as id
// references into the graph's node map, never as embedded node values, so a
// graph serializes without reference cycles.
type FolderNode struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ParentID string   `json:"parentId,omitempty"`
	ChildIDs []string `json:"childIds,omitempty"`
	IsFolder bool     `json:"isFolder"`
}

// FolderGraph is the folder hierarchy of a record list as a flat id-keyed map.
type FolderGraph struct {
	Nodes   map[string]*FolderNode `json:"nodes"`
	RootIDs []string               `json:"rootIds"`
}

// BuildFolderGraph constructs the hierarchy from a flat record list. A record
// whose parent does not appear in the list becomes a root. Children and roots
// are ordered folders-first, then by name.
func BuildFolderGraph(records []FileRecord) *FolderGraph {
	g := &FolderGraph{Nodes: make(map[string]*FolderNode, len(records))}

	for _, rec := range records {
		parent := ""
		if len(rec.Parents) > 0 {
			parent = rec.Parents[0]
		}
		g.Nodes[rec.ID] = &FolderNode{
			ID:       rec.ID,
			Name:     rec.Name,
			ParentID: parent,
			IsFolder: rec.IsFolder(),
		}
	}

	for id, node := range g.Nodes {
		parent, ok := g.Nodes[node.ParentID]
		if !ok || node.ParentID == id {
			node.ParentID = ""
			g.RootIDs = append(g.RootIDs, id)
			continue
		}
		parent.ChildIDs = append(parent.ChildIDs, id)
	}

	g.sortIDs(g.RootIDs)
	for _, node := range g.Nodes {
		g.sortIDs(node.ChildIDs)
	}
	return g
}

// Children returns the resolved child nodes of id, in graph order.
func (g *FolderGraph) Children(id string) []*FolderNode {
	node, ok := g.Nodes[id]
	if !ok {
		return nil
	}
	children := make([]*FolderNode, 0, len(node.ChildIDs))
	for _, cid := range node.ChildIDs {
		if child, ok := g.Nodes[cid]; ok {
			children = append(children, child)
		}
	}
	return children
}

// Roots returns the resolved root nodes in graph order.
func (g *FolderGraph) Roots() []*FolderNode {
	roots := make([]*FolderNode, 0, len(g.RootIDs))
	for _, id := range g.RootIDs {
		if node, ok := g.Nodes[id]; ok {
			roots = append(roots, node)
		}
	}
	return roots
}

func (g *FolderGraph) sortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := g.Nodes[ids[i]], g.Nodes[ids[j]]
		if a.IsFolder != b.IsFolder {
			return a.IsFolder
		}
		return a.Name < b.Name
	})
}
