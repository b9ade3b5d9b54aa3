// Package hcl provides the concrete HCL implementation of the
// config.Loader interface. It is responsible for file parsing and
// HCL-to-model translation; expression evaluation happens later, per job
// variant, in the matrix and runner packages.
package hcl
