package wire

import "hash/fnv"

// UserResolver maps usernames to numeric user ids. The lookup may miss for
// peers this client has never synced.
type UserResolver interface {
	Resolve(username string) (int64, bool)
}

// HashUsername derives a stable numeric id from a username. This is the
// fallback when neither the envelope nor the resolver can supply one; it is
// a documented approximation and not guaranteed collision-free.
func HashUsername(username string) int64 {
	h := fnv.New64a()
	h.Write([]byte(username))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// ResolveUserID resolves a participant's numeric id: the explicit envelope
// field wins, then the resolver, then the username hash fallback.
func ResolveUserID(explicit int64, username string, resolver UserResolver) int64 {
	if explicit != 0 {
		return explicit
	}
	if resolver != nil {
		if id, ok := resolver.Resolve(username); ok {
			return id
		}
	}
	return HashUsername(username)
}
