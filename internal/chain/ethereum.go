package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"landledger/internal/platform/config"
	id "landledger/pkg/domain"
)

// registryABI is the minimal contract surface the adapter uses: the ERC-721
// ownership/approval reads plus the registry's mint and transfer entrypoints.
const registryABI = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"tokenId","type":"uint256"},{"indexed":false,"name":"propertyId","type":"string"},{"indexed":true,"name":"owner","type":"address"},{"indexed":false,"name":"location","type":"string"},{"indexed":false,"name":"area","type":"uint256"}],"name":"LandRegistered","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"tokenId","type":"uint256"},{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"price","type":"uint256"},{"indexed":false,"name":"transferDate","type":"uint256"}],"name":"LandTransferred","type":"event"},
	{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"getApproved","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"name":"isApprovedForAll","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"name":"transferFrom","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"_propertyId","type":"string"},{"name":"_owner","type":"address"},{"name":"_location","type":"string"},{"name":"_area","type":"uint256"},{"name":"_propertyType","type":"string"},{"name":"_ipfsHash","type":"string"},{"name":"_latitude","type":"uint256"},{"name":"_longitude","type":"uint256"}],"name":"registerLand","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"_tokenId","type":"uint256"},{"name":"_to","type":"address"},{"name":"_price","type":"uint256"}],"name":"transferLand","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"_tokenId","type":"uint256"}],"name":"getLandDetails","outputs":[{"components":[{"name":"id","type":"uint256"},{"name":"propertyId","type":"string"},{"name":"owner","type":"address"},{"name":"location","type":"string"},{"name":"area","type":"uint256"},{"name":"propertyType","type":"string"},{"name":"registrationDate","type":"uint256"},{"name":"isVerified","type":"bool"},{"name":"ipfsHash","type":"string"},{"name":"latitude","type":"uint256"},{"name":"longitude","type":"uint256"}],"name":"","type":"tuple"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// Coordinates are persisted on-chain as shifted micro-degrees so negative
// values fit in a uint256.
const (
	coordScale = 1_000_000
	coordShift = 180 * coordScale
)

// EthereumClient implements Client against an EVM-compatible registry
// contract over JSON-RPC. It is constructed once in main and injected into
// every component that talks to the ledger.
type EthereumClient struct {
	rpc      *ethclient.Client
	contract *bind.BoundContract
	abi      abi.ABI
	priv     *ecdsa.PrivateKey
	signer   common.Address
	chainID  *big.Int
	cfg      config.ChainConfig
	log      *log.Logger
}

// NewEthereumClient dials the RPC endpoint and binds the registry contract.
func NewEthereumClient(cfg config.ChainConfig, logger *log.Logger) (*EthereumClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain rpc url is required")
	}
	if cfg.ContractAddress == "" {
		return nil, fmt.Errorf("contract address is required")
	}

	rpc, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}

	priv, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}

	contractAddr := common.HexToAddress(cfg.ContractAddress)
	contract := bind.NewBoundContract(contractAddr, parsed, rpc, rpc, rpc)

	c := &EthereumClient{
		rpc:      rpc,
		contract: contract,
		abi:      parsed,
		priv:     priv,
		signer:   crypto.PubkeyToAddress(priv.PublicKey),
		chainID:  big.NewInt(cfg.ChainID),
		cfg:      cfg,
		log:      logger,
	}
	logger.Printf("chain client bound to %s (chain id %d), signer %s", contractAddr.Hex(), cfg.ChainID, c.signer.Hex())
	return c, nil
}

// Close releases the RPC connection.
func (c *EthereumClient) Close() {
	c.rpc.Close()
}

func (c *EthereumClient) SignerAddress() id.WalletAddress {
	return id.WalletAddress(c.signer.Hex())
}

func (c *EthereumClient) CurrentOwner(ctx context.Context, tokenID id.TokenID) (id.WalletAddress, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", big.NewInt(int64(tokenID))); err != nil {
		return "", Unavailable(err)
	}
	owner := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	return id.WalletAddress(owner.Hex()), nil
}

func (c *EthereumClient) Approved(ctx context.Context, tokenID id.TokenID) (id.WalletAddress, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getApproved", big.NewInt(int64(tokenID))); err != nil {
		return "", Unavailable(err)
	}
	approved := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if approved == (common.Address{}) {
		return "", nil
	}
	return id.WalletAddress(approved.Hex()), nil
}

func (c *EthereumClient) IsApprovedForAll(ctx context.Context, owner, operator id.WalletAddress) (bool, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "isApprovedForAll",
		common.HexToAddress(owner.String()), common.HexToAddress(operator.String()))
	if err != nil {
		return false, Unavailable(err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *EthereumClient) SubmitRegistration(ctx context.Context, reg Registration) (RegistrationResult, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return RegistrationResult{}, Unavailable(err)
	}

	// The service's own address becomes custodial owner; the user wallet is
	// recorded in the database only.
	tx, err := c.contract.Transact(opts, "registerLand",
		reg.PropertyID.String(),
		c.signer,
		reg.Location,
		big.NewInt(int64(reg.Area)),
		reg.PropertyType,
		reg.DocumentHash,
		shiftedCoord(reg.Latitude),
		shiftedCoord(reg.Longitude),
	)
	if err != nil {
		return RegistrationResult{}, Unavailable(err)
	}
	c.log.Printf("registration submitted for %s: tx %s", reg.PropertyID, tx.Hash().Hex())

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return RegistrationResult{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return RegistrationResult{}, Rejected(fmt.Sprintf("registration reverted in block %d", receipt.BlockNumber))
	}

	tokenID, ok := c.registeredTokenID(receipt)
	if !ok {
		// Confirmed but no mint event: the contract did not register the
		// parcel, so the attempt is terminal.
		return RegistrationResult{}, Rejected("confirmed receipt carries no LandRegistered event")
	}

	return RegistrationResult{
		TxHash:      receipt.TxHash.Hex(),
		TokenID:     tokenID,
		BlockNumber: receipt.BlockNumber.Int64(),
	}, nil
}

func (c *EthereumClient) SubmitTransfer(ctx context.Context, tokenID id.TokenID, from, to id.WalletAddress, price float64) (string, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return "", Unavailable(err)
	}

	toAddr := common.HexToAddress(to.String())

	// transferLand records price and history but is owner-only; when the
	// service merely holds an approval it falls back to plain transferFrom.
	var tx *types.Transaction
	if from.Equal(c.SignerAddress()) {
		tx, err = c.contract.Transact(opts, "transferLand", big.NewInt(int64(tokenID)), toAddr, weiFromPrice(price))
	} else {
		tx, err = c.contract.Transact(opts, "transferFrom", common.HexToAddress(from.String()), toAddr, big.NewInt(int64(tokenID)))
	}
	if err != nil {
		return "", Unavailable(err)
	}
	c.log.Printf("transfer submitted for token %d: tx %s", tokenID, tx.Hash().Hex())

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", Rejected(fmt.Sprintf("transfer reverted in block %d", receipt.BlockNumber))
	}
	return receipt.TxHash.Hex(), nil
}

func (c *EthereumClient) RegisteredParcel(ctx context.Context, tokenID id.TokenID) (ParcelRecord, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getLandDetails", big.NewInt(int64(tokenID))); err != nil {
		return ParcelRecord{}, Unavailable(err)
	}

	type landDetails struct {
		Id               *big.Int
		PropertyId       string
		Owner            common.Address
		Location         string
		Area             *big.Int
		PropertyType     string
		RegistrationDate *big.Int
		IsVerified       bool
		IpfsHash         string
		Latitude         *big.Int
		Longitude        *big.Int
	}
	details := *abi.ConvertType(out[0], new(landDetails)).(*landDetails)

	return ParcelRecord{
		TokenID:    tokenID,
		PropertyID: id.PropertyID(details.PropertyId),
		Owner:      id.WalletAddress(details.Owner.Hex()),
	}, nil
}

func (c *EthereumClient) TotalRegistered(ctx context.Context) (int64, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "totalSupply"); err != nil {
		return 0, Unavailable(err)
	}
	total := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return total.Int64(), nil
}

func (c *EthereumClient) IsReachable(ctx context.Context) bool {
	_, err := c.rpc.BlockNumber(ctx)
	return err == nil
}

func (c *EthereumClient) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.priv, c.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.GasLimit = c.cfg.GasLimit
	opts.GasPrice = new(big.Int).Mul(big.NewInt(c.cfg.GasPriceGwei), big.NewInt(1e9))
	return opts, nil
}

// waitMined blocks until the receipt arrives or the configured timeout
// elapses, classifying the failure mode for the caller.
func (c *EthereumClient) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.rpc, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, Timeout(err)
		}
		return nil, Unavailable(err)
	}
	return receipt, nil
}

// registeredTokenID extracts the minted token id from the LandRegistered
// event's indexed tokenId topic.
func (c *EthereumClient) registeredTokenID(receipt *types.Receipt) (id.TokenID, bool) {
	eventID := c.abi.Events["LandRegistered"].ID
	for _, lg := range receipt.Logs {
		if len(lg.Topics) >= 2 && lg.Topics[0] == eventID {
			return id.TokenID(new(big.Int).SetBytes(lg.Topics[1].Bytes()).Int64()), true
		}
	}
	return 0, false
}

func shiftedCoord(deg float64) *big.Int {
	return big.NewInt(int64(deg*coordScale) + coordShift)
}

func weiFromPrice(price float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(price), big.NewFloat(1e18)).Int(nil)
	return wei
}
