package services

import (
	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/dmitrijs2005/walletgate/internal/server/models"
	"github.com/dmitrijs2005/walletgate/internal/server/siwex"
)

// DemoUsers are the accounts behind siwex.DemoAddresses, in the same order.
func DemoUsers() []*models.User {
	return []*models.User{
		{EthereumAddress: siwex.DemoAddresses[0], UserName: "alice", Name: "Alice", Role: common.RoleBuyer, Status: common.StatusActive},
		{EthereumAddress: siwex.DemoAddresses[1], UserName: "bob", Name: "Bob", Role: common.RoleSeller, Status: common.StatusActive},
		{EthereumAddress: siwex.DemoAddresses[2], UserName: "carol", Name: "Carol", Role: common.RoleAdmin, Status: common.StatusActive},
	}
}
