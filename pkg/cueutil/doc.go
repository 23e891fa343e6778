// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates CUE documents against an embedded schema.
//
// A Schema is compiled once and reused for every document:
//
//	//go:embed config_schema.cue
//	var schemaSource []byte
//
//	schema, err := cueutil.CompileSchema(schemaSource, "#Config")
//	if err != nil {
//	    return err
//	}
//	values, err := schema.DecodeMap(data, cueutil.WithFilename(path), cueutil.WithConcrete(false))
//	if err != nil {
//	    return err // *SchemaError listing every violation with its JSON path
//	}
//
// Documents are size-checked before compilation, unified with the schema
// definition, validated and decoded into a map for merging into another
// configuration layer.
package cueutil
