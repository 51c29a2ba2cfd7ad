package lib

type Set map[string]struct{}

func NewSetFromSlice(slice []string) Set {
	s := make(map[string]struct{}, len(slice))
	for _, v := range slice {
		s[v] = struct{}{}
	}
	return Set(s)
}

func (s Set) Contains(value string) bool {
	_, c := s[value]
	return c
}

func (s Set) Len() int {
	return len(s)
}
