/*
Package domain contains the core domain models and business logic for MindSync.

It defines the fundamental entities of a collaborative mind map: Nodes, the Tree
they form, and the Mutations that change it. This package is kept pure and free
of external dependencies like I/O or persistence, following Hexagonal
Architecture principles.

# Key Entities

  - Node: A single shape on the board (description, shape variant, geometry).
  - Tree: An id-indexed rooted tree of nodes. Trees are treated as immutable
    values; Apply produces a new Tree and never touches the receiver.
  - Mutation: A structural change intent (Insert, Update, Move, Delete).
  - Board: A Tree plus the monotonically increasing Version that counts the
    mutations applied to it.
*/
package domain
