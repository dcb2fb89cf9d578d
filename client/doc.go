// Package client provides a client for interacting with a KVStore
// server over its TCP line protocol.
//
// Example:
//
//	c, err := client.Connect()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	resp, err := c.Put("foo", "bar")
//	resp, err = c.Get("foo")
package client
