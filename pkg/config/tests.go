package config

// TestCase is one payload-size/attribute-count combination.
type TestCase struct {
	Size  int    // total payload size in bytes
	Attrs int    // number of attributes the payload is split across
	Desc  string // human label for progress output
}

// TestType returns the document schema classification for a case.
func (tc TestCase) TestType() string {
	if tc.Attrs == 1 {
		return "single_attr"
	}

	return "multi_attr"
}

// SingleAttrTests are the standard single-attribute payload shapes.
func SingleAttrTests() []TestCase {
	return []TestCase{
		{Size: 10, Attrs: 1, Desc: "10B single attribute"},
		{Size: 200, Attrs: 1, Desc: "200B single attribute"},
		{Size: 1000, Attrs: 1, Desc: "1000B single attribute"},
		{Size: 2000, Attrs: 1, Desc: "2000B single attribute"},
		{Size: 4000, Attrs: 1, Desc: "4000B single attribute"},
	}
}

// LargeSingleAttrTests are the optional large-payload single-attribute tiers.
func LargeSingleAttrTests() []TestCase {
	return []TestCase{
		{Size: 10000, Attrs: 1, Desc: "10KB single attribute"},
		{Size: 100000, Attrs: 1, Desc: "100KB single attribute"},
		{Size: 1000000, Attrs: 1, Desc: "1000KB single attribute"},
	}
}

// MultiAttrTests are the standard multi-attribute payload shapes.
func MultiAttrTests() []TestCase {
	return []TestCase{
		{Size: 10, Attrs: 10, Desc: "10 attributes × 1B = 10B"},
		{Size: 200, Attrs: 10, Desc: "10 attributes × 20B = 200B"},
		{Size: 1000, Attrs: 50, Desc: "50 attributes × 20B = 1000B"},
		{Size: 2000, Attrs: 100, Desc: "100 attributes × 20B = 2000B"},
		{Size: 4000, Attrs: 200, Desc: "200 attributes × 20B = 4000B"},
	}
}

// LargeMultiAttrTests are the optional large-payload multi-attribute tiers.
func LargeMultiAttrTests() []TestCase {
	return []TestCase{
		{Size: 10000, Attrs: 200, Desc: "200 attributes × 50B = 10KB"},
		{Size: 100000, Attrs: 500, Desc: "500 attributes × 200B = 100KB"},
		{Size: 1000000, Attrs: 1000, Desc: "1000 attributes × 1000B = 1000KB"},
	}
}
