/*
Package ports defines the driven ports (interfaces) for the MindSync gateway.

These interfaces decouple the core logic from external implementations,
allowing the gateway to work with various storage backends and, when deployed
with multiple replicas, a distributed locking provider.

# Key Interfaces

  - BoardStore: Responsible for persisting and loading board snapshots
    (tree plus version).
  - DistributedLocker: Coordinates board ownership across gateway replicas.
*/
package ports
