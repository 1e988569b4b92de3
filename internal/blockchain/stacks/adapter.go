package stacks

// Adapter combines the read side of the Hiro API with the vault calls
type Adapter struct {
	*Client
	*Vault
}

// NewAdapter joins a client and a vault
func NewAdapter(client *Client, vault *Vault) *Adapter {
	return &Adapter{Client: client, Vault: vault}
}
