package syncengine

// TableName computes the local SQL table name for a resource/class pair
// (spec.md §4.5 step 2): "Deleted_<class>" when resource = Deleted;
// "<resource>" when there is exactly one class and it's the synthetic
// default or equals the resource name; else "<resource>_<class>".
func TableName(resourceID, className string, classCount int) string {
	if resourceID == "Deleted" {
		return "Deleted_" + className
	}
	if classCount <= 1 && (className == "" || className == resourceID) {
		return resourceID
	}
	return resourceID + "_" + className
}

// SearchTypeClass resolves the SearchType/Class query parameters for a
// Search call (spec.md §4.5.2). If the resource name contains an
// underscore and no explicit class was requested, the resource name is
// split into SearchType (prefix) and Class (suffix). When a resource has
// exactly one class whose name equals the resource name, Class is set
// equal to SearchType rather than the class name — preserved verbatim per
// spec.md's open question on this behavior.
func SearchTypeClass(resourceID, className string, classCount int) (searchType, class string) {
	if classCount == 1 && className == resourceID {
		if idx := indexOfUnderscore(resourceID); idx >= 0 {
			searchType = resourceID[:idx]
			return searchType, searchType
		}
		return resourceID, resourceID
	}

	if idx := indexOfUnderscore(resourceID); idx >= 0 && className == "" {
		return resourceID[:idx], resourceID[idx+1:]
	}

	return resourceID, className
}

func indexOfUnderscore(s string) int {
	for i, c := range s {
		if c == '_' {
			return i
		}
	}
	return -1
}
