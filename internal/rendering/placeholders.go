package rendering

// DiscoverPlaceholders lists the distinct {{B<n>}} markers found in the text
// of the template, ordered by number. It is a diagnostic aid; substitution
// does not depend on it.
func DiscoverPlaceholders(templatePath string) ([]string, error) {
	pkg, err := loadTemplate(templatePath)
	if err != nil {
		return nil, err
	}
	return pkg.placeholders(), nil
}

func (p *odtPackage) placeholders() []string {
	seen := make(map[string]bool)
	nodes := collect(p.content.Root(), append(paragraphPaths, spanPath)...)
	for _, node := range nodes {
		for _, tok := range markerPattern.FindAllString(flatten(node), -1) {
			seen[tok] = true
		}
	}

	out := make([]string, 0, len(seen))
	for tok := range seen {
		out = append(out, tok)
	}
	sortMarkers(out)
	return out
}
