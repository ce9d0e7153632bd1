package onboarding

func (ix *Index) Len() int {
	return len(ix.entries)
}
