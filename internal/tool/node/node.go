// Package node implements the dev node and benchmark commands.
package node

import "github.com/kanengo/rigging/internal/tool"

var Commands = map[string]*tool.Command{
	"devnode": &devnodeCmd,
	"bench":   &benchCmd,
}
