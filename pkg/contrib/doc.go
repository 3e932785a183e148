// Package contrib ships ready-made contract kinds built on the engine's
// declaration API: a cold-storage vault, an oracle-cosigned variant of
// it for chains without covenant support, and a sellable NFT. They
// double as end-to-end exercises of guards, inclusion conditions,
// continuations and policy rules, and as templates for writing new
// kinds.
package contrib
