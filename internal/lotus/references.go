package lotus

// References is what a content walk discovers in one document.
type References struct {
	CrossReferences map[string]string
	Attachments     map[string]*Media
	Images          map[string]*Media
	Unmatched       []string
}

func newReferences() References {
	return References{
		CrossReferences: make(map[string]string),
		Attachments:     make(map[string]*Media),
		Images:          make(map[string]*Media),
	}
}

// Merge returns r extended with child's entries. Entries already in r win on key collision.
func (r References) Merge(child References) References {
	out := References{
		CrossReferences: make(map[string]string, len(r.CrossReferences)+len(child.CrossReferences)),
		Attachments:     make(map[string]*Media, len(r.Attachments)+len(child.Attachments)),
		Images:          make(map[string]*Media, len(r.Images)+len(child.Images)),
	}
	for k, v := range child.CrossReferences {
		out.CrossReferences[k] = v
	}
	for k, v := range r.CrossReferences {
		out.CrossReferences[k] = v
	}
	for k, v := range child.Attachments {
		out.Attachments[k] = v
	}
	for k, v := range r.Attachments {
		out.Attachments[k] = v
	}
	for k, v := range child.Images {
		out.Images[k] = v
	}
	for k, v := range r.Images {
		out.Images[k] = v
	}
	out.Unmatched = append(append([]string(nil), r.Unmatched...), child.Unmatched...)
	return out
}
