// Package program implements the commands that create programs and their clients.
package program

import "github.com/kanengo/rigging/internal/tool"

var Commands = map[string]*tool.Command{
	"new-program":     &newProgramCmd,
	"generate-client": &generateClientCmd,
	"idl":             &idlCmd,
}
