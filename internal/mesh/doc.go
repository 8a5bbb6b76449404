// Package mesh describes the fixed topology of the spring grid.
//
// A [Grid] maps (x, y) lattice coordinates to linear vertex indices and
// decides which vertices sit inside the rigid border. A [NeighborTable] is
// built once per grid and lists, for every vertex, the 8 direct compass
// neighbors followed by the 4 bend neighbors two steps out:
//
//	N, NE, E, SE, S, SW, W, NW, Nb, Eb, Sb, Wb
//
// Every entry carries an existence flag. Entries that would fall off the
// grid, or wrap around a row, are flagged as missing and must never be
// dereferenced.
package mesh
