/*
Package ports defines the driven ports (interfaces) of the session
coordination layer.

These interfaces decouple the core from concrete backends, allowing the
session store to run against Redis in production and an in-process map in
tests or single-node deployments.

# Key Interfaces

  - Store: uniform get/set-with-ttl/delete/set-membership operations.
  - Locker: the atomic set-if-absent / compare-and-delete lock primitive.
  - Generator, Uploader, Rules: external collaborators the core consumes
    but does not implement.
*/
package ports
