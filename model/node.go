package model

type Node struct {
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Labels  []string `json:"labels"`
}

// HasLabel 节点是否带有某个标签，空选择器视为 hosted 池
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}
