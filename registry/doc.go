// Package registry provides the host-side registries that consume
// ancestry results: areas, devices, and entities. Each holds directly
// assigned labels on its entries, derives effective label sets through
// the label registry, and re-derives them when structural-change events
// fire on the bus.
//
// Wiring order matters and mirrors event order: the area registry
// refreshes on "ancestry updated", then device and entity registries
// refresh on "extra updated". Construct the device registry before the
// entity registry so device label changes are visible when entities
// recompute their assigned labels.
package registry
