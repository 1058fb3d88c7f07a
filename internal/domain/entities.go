package domain

import (
	"encoding/json"
	"fmt"
)

// BundleType is the document type tag stored with every bundle
const BundleType = "bundle"

// Bundle is a named collection of book references kept in the bundle store.
// Fields the API does not consume are carried through untouched so a
// read-modify-write never drops them (e.g. the store's _rev).
type Bundle struct {
	ID    string
	Rev   string
	Type  string
	Name  string
	Books map[string]string // book ID -> title

	set   field // known keys the document carries, even when empty
	extra map[string]json.RawMessage
}

type field uint8

const (
	fieldID field = 1 << iota
	fieldRev
	fieldType
	fieldName
)

// NewBundle returns an empty bundle ready to be created in the store
func NewBundle(name string) Bundle {
	return Bundle{
		Type:  BundleType,
		Name:  name,
		Books: map[string]string{},
		set:   fieldType | fieldName,
	}
}

// Clone returns a copy whose Books map can be changed without touching b
func (b Bundle) Clone() Bundle {
	out := b
	out.Books = make(map[string]string, len(b.Books))
	for id, title := range b.Books {
		out.Books[id] = title
	}
	if b.extra != nil {
		out.extra = make(map[string]json.RawMessage, len(b.extra))
		for k, v := range b.extra {
			out.extra[k] = v
		}
	}
	return out
}

// HasBook reports whether the bundle references the given book
func (b Bundle) HasBook(bookID string) bool {
	_, ok := b.Books[bookID]
	return ok
}

// WithName returns a copy of b carrying the new name
func (b Bundle) WithName(name string) Bundle {
	out := b.Clone()
	out.Name = name
	out.set |= fieldName
	return out
}

// WithBook returns a copy of b that references book
func (b Bundle) WithBook(book Book) Bundle {
	out := b.Clone()
	out.Books[book.ID] = book.Title
	return out
}

// WithoutBook returns a copy of b without the given book
func (b Bundle) WithoutBook(bookID string) Bundle {
	out := b.Clone()
	delete(out.Books, bookID)
	return out
}

// MarshalJSON writes the known fields over any carried-through ones.
// A known field is written only if the document had it or it was set.
func (b Bundle) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(b.extra)+5)
	for k, v := range b.extra {
		doc[k] = v
	}
	known := []struct {
		key   string
		flag  field
		value string
	}{
		{"_id", fieldID, b.ID},
		{"_rev", fieldRev, b.Rev},
		{"type", fieldType, b.Type},
		{"name", fieldName, b.Name},
	}
	for _, f := range known {
		if f.value != "" || b.set&f.flag != 0 {
			doc[f.key] = f.value
		}
	}

	books := b.Books
	if books == nil {
		books = map[string]string{}
	}
	doc["books"] = books

	return json.Marshal(doc)
}

// UnmarshalJSON reads a bundle document, keeping unknown fields aside
func (b *Bundle) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("bundle document is null")
	}

	out := Bundle{}
	fields := []struct {
		key  string
		flag field
		dest any
	}{
		{"_id", fieldID, &out.ID},
		{"_rev", fieldRev, &out.Rev},
		{"type", fieldType, &out.Type},
		{"name", fieldName, &out.Name},
		{"books", 0, &out.Books},
	}
	for _, f := range fields {
		raw, ok := doc[f.key]
		if !ok {
			continue
		}
		// a null stays in extra so it is written back as null
		if string(raw) == "null" {
			if f.flag == 0 {
				delete(doc, f.key)
			}
			continue
		}
		delete(doc, f.key)
		if err := json.Unmarshal(raw, f.dest); err != nil {
			return fmt.Errorf("bundle field %s: %w", f.key, err)
		}
		out.set |= f.flag
	}

	// books is always present, even if the store left it out
	if out.Books == nil {
		out.Books = map[string]string{}
	}
	if len(doc) > 0 {
		out.extra = doc
	}

	*b = out
	return nil
}

// Book is the slice of a book store document this service reads
type Book struct {
	ID    string `json:"_id"`
	Title string `json:"title"`
}

// BookRef is a book as listed inside a bundle
type BookRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
