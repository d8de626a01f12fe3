package main

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	appconfig "github.com/vulpemventures/cosigner/internal/app-config"
	"github.com/vulpemventures/cosigner/internal/config"
	"github.com/vulpemventures/cosigner/internal/core/domain"
)

func getAppConfig() (*appconfig.AppConfig, func(), error) {
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	appCfg := appconfig.FromEnv()
	if err := appCfg.Validate(); err != nil {
		appCfg.Close()
		return nil, nil, fmt.Errorf("failed to initialize cosigner: %s", err)
	}
	return appCfg, appCfg.Close, nil
}

type transactionInfo struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	Description   string     `json:"description,omitempty"`
	Type          string     `json:"type"`
	LedgerTxID    string     `json:"ledgerTxId"`
	Status        string     `json:"status"`
	StatusCode    *int32     `json:"statusCode,omitempty"`
	ValidStart    time.Time  `json:"validStart"`
	ExecutedAt    *time.Time `json:"executedAt,omitempty"`
	IsManual      bool       `json:"isManual"`
	MirrorNetwork string     `json:"mirrorNetwork"`
	GroupID       string     `json:"groupId,omitempty"`
	GroupSeq      int        `json:"groupSeq,omitempty"`
	Signatures    int        `json:"signatures"`
}

func newTransactionInfo(tx *domain.Transaction) transactionInfo {
	info := transactionInfo{
		ID:            tx.ID,
		Name:          tx.Name,
		Description:   tx.Description,
		Type:          tx.Type.String(),
		LedgerTxID:    tx.LedgerTxID,
		Status:        tx.Status.String(),
		StatusCode:    tx.StatusCode,
		ValidStart:    tx.ValidStart,
		ExecutedAt:    tx.ExecutedAt,
		IsManual:      tx.IsManual,
		MirrorNetwork: tx.MirrorNetwork,
		GroupID:       tx.GroupID,
		GroupSeq:      tx.GroupSeq,
	}
	if decoded, err := tx.Decode(); err == nil {
		info.Signatures = len(decoded.Signatures())
	}
	return info
}

func printJSON(v interface{}) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}
