// Package discovery locates servers on the local network.
//
// A Service broadcasts one JSON request datagram to the configured port and
// then collects RESPONSE datagrams until its time budget runs out or the
// run is cancelled. Endpoints are deduplicated by IP and handed to the
// OnDiscovered callback as they arrive; OnFinish receives the full list when
// the run ends.
//
//	svc, err := discovery.NewService(7001, nil)
//	svc.OnDiscovered(func(ep protocol.DiscoveredEndpoint) { ... })
//	if err := svc.StartDiscovering(); err != nil { ... }
//	svc.Wait()
//
// Discovery is best effort. Malformed datagrams and read failures are
// reported and the scan keeps going.
package discovery
