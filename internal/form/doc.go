// Package form decodes URL-encoded contact form submissions into ordered field sets.
package form
