package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"net/url"
)

func main() {
	controlURI := flag.String("control", "http://localhost:5561", "GRIP proxy control URI")
	iss := flag.String("iss", "flychat", "Control token issuer")
	flag.Parse()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	encoded := "base64:" + base64.StdEncoding.EncodeToString(key)

	q := url.Values{}
	q.Set("iss", *iss)
	q.Set("key", encoded)

	fmt.Printf("Control key: %s\n", encoded)
	fmt.Printf("GRIP_URL=%s/?%s\n", *controlURI, q.Encode())
}
