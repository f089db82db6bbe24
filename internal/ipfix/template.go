package ipfix

import "sync"

// Template is a record layout learned from a template set.
type Template struct {
	ID uint16
	// ScopeCount is non-zero for options templates.
	ScopeCount uint16
	Fields     []FieldSpec
}

// minRecordLen is the smallest encoding of one record: fixed lengths plus
// one length byte per variable-length field.
func (t Template) minRecordLen() int {
	n := 0
	for _, f := range t.Fields {
		if f.Length == VariableLength {
			n++
		} else {
			n += int(f.Length)
		}
	}
	return n
}

type templateKey struct {
	domain uint32
	id     uint16
}

// TemplateCache holds templates per observation domain. Redefinitions
// replace the previous layout.
type TemplateCache struct {
	mu        sync.RWMutex
	templates map[templateKey]Template
}

// NewTemplateCache creates an empty cache.
func NewTemplateCache() *TemplateCache {
	return &TemplateCache{templates: make(map[templateKey]Template)}
}

// Get returns the template for id in domain.
func (c *TemplateCache) Get(domain uint32, id uint16) (Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[templateKey{domain, id}]
	return t, ok
}

// Put stores t, overwriting any template with the same id.
func (c *TemplateCache) Put(domain uint32, t Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[templateKey{domain, t.ID}] = t
}

// Withdraw removes one template.
func (c *TemplateCache) Withdraw(domain uint32, id uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.templates, templateKey{domain, id})
}

// WithdrawAll removes every template of a domain.
func (c *TemplateCache) WithdrawAll(domain uint32, options bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, t := range c.templates {
		if k.domain == domain && (t.ScopeCount > 0) == options {
			delete(c.templates, k)
		}
	}
}

// Len returns the number of cached templates.
func (c *TemplateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.templates)
}
