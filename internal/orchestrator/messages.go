package orchestrator

import (
	"strings"

	"usdcx/bridge/internal/models"
)

// StatusMessage is the headline shown for a session status
type StatusMessage struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

var statusMessages = map[models.SessionStatus]StatusMessage{
	models.StatusIdle: {
		Title:    "Ready to bridge",
		Subtitle: "Enter an amount and connect your wallets to begin.",
	},
	models.StatusAwaitingApproval: {
		Title:    "Waiting for approval",
		Subtitle: "Confirm the USDC approval transaction in your Ethereum wallet.",
	},
	models.StatusApproving: {
		Title:    "Approving USDC...",
		Subtitle: "Transaction submitted. Waiting for confirmation.",
	},
	models.StatusAwaitingTransfer: {
		Title:    "Ready to bridge",
		Subtitle: "Click the button to initiate the bridge to Stacks.",
	},
	models.StatusTransferring: {
		Title:    "Bridging in progress",
		Subtitle: "Your USDC is being bridged to USDCx. This may take 1-3 minutes.",
	},
	models.StatusSettling: {
		Title:    "Minting USDCx on Stacks...",
		Subtitle: "Almost there! Your USDCx is being minted.",
	},
	models.StatusAwaitingDeposit: {
		Title:    "USDCx received!",
		Subtitle: "Ready to deposit into the vault strategy.",
	},
	models.StatusDepositing: {
		Title:    "Depositing into vault...",
		Subtitle: "Your USDCx is being deposited into the savings vault.",
	},
}

var stepFailureTitles = map[models.Step]string{
	models.StepApprove:  "Approval failed",
	models.StepTransfer: "Bridge transfer failed",
	models.StepDeposit:  "Vault deposit failed",
}

// MessageFor returns the message for a status. A failed step takes precedence.
func MessageFor(status models.SessionStatus, strategy models.Strategy, errorStep models.Step, reason string) StatusMessage {
	if title, ok := stepFailureTitles[errorStep]; ok {
		if reason == "" {
			reason = "Something went wrong"
		}
		return StatusMessage{Title: title, Subtitle: strings.TrimSuffix(reason, ".") + ". You can retry this step."}
	}

	if status == models.StatusComplete {
		msg := StatusMessage{Title: "Bridge complete!"}
		if strategy == models.StrategyVault {
			msg.Subtitle = "Your USDCx is deposited in the USDCx Savings Vault."
		} else {
			msg.Subtitle = "Your USDCx is now in your Stacks wallet."
		}
		return msg
	}

	return statusMessages[status]
}
