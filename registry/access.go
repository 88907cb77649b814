package registry

// IsOwner reports whether actor is the configured owner.
func IsOwner(owner, actor string) bool {
	return owner != "" && actor == owner
}

// IsAuthor reports whether actor wrote message.
func IsAuthor(message Message, actor string) bool {
	return actor != "" && message.Author == actor
}

// IsRecipient reports whether actor is the addressee of a direct message.
func IsRecipient(message Message, actor string) bool {
	return actor != "" && message.Recipient != "" && message.Recipient == actor
}

// Each mutating operation states its own policy; there is no role hierarchy.

func (r *Registry) canEdit(message Message, actor string) bool {
	return IsAuthor(message, actor)
}

func (r *Registry) canDelete(message Message, actor string) bool {
	switch r.cfg.Variant {
	case VariantDirect:
		return IsAuthor(message, actor) || IsRecipient(message, actor)
	default:
		return IsAuthor(message, actor) || IsOwner(r.cfg.Owner, actor)
	}
}

func (r *Registry) canMarkRead(message Message, actor string) bool {
	return IsRecipient(message, actor)
}

func (r *Registry) canWithdraw(actor string) bool {
	return IsOwner(r.cfg.Owner, actor)
}
