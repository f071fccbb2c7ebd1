/*
Package rowbind maps flat tabular rows onto nested Go values and back. You
bring the rows (a database result set, an in-memory table, anything exposing
the small [RowSource] interface); rowbind builds typed objects from them, or
turns typed objects into a lazy row sequence for any tabular sink.

# Overview

One logical object may occupy several physical rows. A record field marked as
the identity decides which consecutive rows belong together: while the
identity column repeats, each extra row appends one element to every
slice-shaped field of the object under construction. Nested records are
flattened into the row's column namespace by concatenating field prefixes
("testresults_" + "id" → "testresults_id"), and deconstruction applies the
same rule in reverse, so a value survives the round trip intact.

# Shape model

Every Go type is classified into one of four shapes: record (struct),
mapping (map), sequence (slice or array), or scalar. Classification is done
by a [Reflector]; the default one is tag-driven:

	type TestResult struct {
	    ID     int       `row:"id,identity"`
	    Values []float64 `row:"values"`
	}

Mapping values and sequence elements must be scalar. An aggregate there has
no unambiguous column range, and both engines reject it with a
[ConflictError].

# Constructing

[ConstructOne] builds exactly one object from the front of a source and
fails with [ErrEmptySource] when the source is empty; leftover rows are
logged as a warning unless silenced. [ConstructMany] keeps building objects
until the source runs dry and returns an empty result for an empty source.
Rows of one identity group must be contiguous; the engines read the source
strictly once, forward, and never re-sort.

# Deconstructing

[Deconstruct] produces a restartable [RowView] whose length is known up
front. Column values reached only through record or mapping fields repeat on
every row of their object; values reached through a sequence field are
indexed by the row's position inside the object's group.

# Performance

The default reflector resolves a type's shape once and caches it in a
concurrency-safe map (sync.Map). Deconstruction discovers the column schema
on the first object only; every subsequent row access is index arithmetic
over precomputed field paths.

rowbind keeps the API small and predictable: plain interfaces in, plain
values out, and errors from user-supplied hooks passed through untouched.
*/
package rowbind
