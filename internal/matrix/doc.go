// Package matrix implements the expansion of a matrix specification into
// the explicit, ordered sequence of job variants.
//
// # Expansion Rules
//
// Expansion is a pure value transformation and is fully deterministic:
//
//  1. The cross product of all axes is generated in lexicographic order:
//     axis declaration order first, then value declaration order. The
//     first declared axis varies slowest.
//  2. Exclude rules remove matching combinations. An exclude matches when
//     every named axis value equals the variant's value and, if present,
//     its `when` predicate evaluates to true against the variant.
//  3. Include entries are applied last, in declaration order. An include
//     whose axis assignments match one or more surviving variants refines
//     them (extra keys merged in); one matching nothing is appended as a
//     new variant.
//
// A specification with no axes yields a single empty variant unless it
// carries includes, in which case the includes alone define the variants.
package matrix
