package state

// a bitmap representing a set of capabilities
type Permission uint64

const (
	PermChatRead  Permission = 1 << iota
	PermChatWrite            // 2
	PermChatAdmin            // 4
)

var BuiltInPerms = map[string]Permission{
	"chat:read":  PermChatRead,
	"chat:write": PermChatWrite,
	"chat:admin": PermChatAdmin,
}

func (p Permission) Has(flag Permission) bool {
	return p&flag == flag
}
