package product

// All is the synthetic category holding every product.
const All = "all"

// Index buckets raw products by category in one pass.
type Index struct {
	buckets    map[string][]Raw
	categories []string
}

// NewIndex builds the index. The All bucket holds every product in source order;
// products without a category appear only there.
func NewIndex(raws []Raw) Index {
	idx := Index{
		buckets:    map[string][]Raw{All: append([]Raw(nil), raws...)},
		categories: []string{All},
	}
	for _, raw := range raws {
		name := raw.Category
		if name == "" || name == All {
			continue
		}
		if _, seen := idx.buckets[name]; !seen {
			idx.categories = append(idx.categories, name)
		}
		idx.buckets[name] = append(idx.buckets[name], raw)
	}
	return idx
}

// Categories returns All followed by every category in first-seen order.
func (i Index) Categories() []string {
	if len(i.categories) == 0 {
		return []string{All}
	}
	return append([]string(nil), i.categories...)
}

// Products returns the bucket for category. Unknown categories yield an empty list.
func (i Index) Products(category string) []Raw {
	bucket := i.buckets[category]
	out := make([]Raw, len(bucket))
	copy(out, bucket)
	return out
}

// Len returns the number of indexed products.
func (i Index) Len() int { return len(i.buckets[All]) }
