package model

// Wallet: кошелёк пользователя на платформе
type Wallet struct {
	ID            string `json:"id"`
	Network       string `json:"network"`
	WalletAddress string `json:"walletAddress"`
	WalletType    string `json:"walletType"`
	IsDefault     bool   `json:"isDefault"`
}

// SetDefaultWalletRequest: выбор кошелька по умолчанию
type SetDefaultWalletRequest struct {
	WalletID string `json:"walletId"`
}
