// Package model holds the data types shared by the identity resolver, the
// signal extractor, the weight table and the persona classifier.
package model

// ParsedName is the structured form of a free-text person name.
// Confidence (0-100) reflects how ambiguous the parse was, not how well the
// name matches any other name.
type ParsedName struct {
	FullName      string `json:"full_name"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	MiddleName    string `json:"middle_name,omitempty"`
	Suffix        string `json:"suffix,omitempty"`
	Confidence    int    `json:"confidence"`
	PhoneticFirst string `json:"phonetic_first"`
	PhoneticLast  string `json:"phonetic_last"`
}
