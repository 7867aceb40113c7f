// Command chatdemo is a reference CLI built on the chat core: it mints
// identities from BIP-39 mnemonics and runs small end-to-end channel
// and group scenarios entirely in-process, printing what each
// participant actually sees. It exists to exercise the library the way
// a real host embedding it would, not to be a persistent chat client.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/corechain/chatproto/internal/chat"
	"github.com/corechain/chatproto/internal/config"
	"github.com/corechain/chatproto/internal/crypto/curve"
	"github.com/corechain/chatproto/internal/identity"
	chatpkg "github.com/corechain/chatproto/pkg/chat"
)

var logger = logrus.StandardLogger()

func initMiddleware(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	if err := config.Load(cfgPath); err != nil {
		return err
	}
	config.SetupLogging(logger)
	logrus.SetLevel(logger.GetLevel())
	identity.SetIdentityLogger(logger)
	return nil
}

func main() {
	root := &cobra.Command{
		Use:               "chatdemo",
		Short:             "Chat protocol reference CLI",
		PersistentPreRunE: initMiddleware,
	}
	root.PersistentFlags().String("config", "chatdemo.yaml", "path to a config file")

	root.AddCommand(identityCmd(), demoCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Generate or recover a chat identity",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "new",
			Short: "Generate a fresh identity and print its mnemonic and public key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				id, err := identity.NewIdentity()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "mnemonic (WRITE IT DOWN): %s\n", id.Mnemonic)
				fmt.Fprintf(cmd.OutOrStdout(), "public key: %x\n", id.PublicKey.Bytes())
				return nil
			},
		},
		&cobra.Command{
			Use:   "recover [mnemonic]",
			Short: "Recover an identity's public key from a mnemonic",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := identity.IdentityFromMnemonic(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "public key: %x\n", id.PublicKey.Bytes())
				return nil
			},
		},
	)
	return cmd
}

func demoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted scenario against the chat core",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "channel",
			Short: "Owner broadcasts on a channel, a subscriber reads it",
			Args:  cobra.NoArgs,
			RunE:  runChannelDemo,
		},
		&cobra.Command{
			Use:   "group",
			Short: "Owner onboards members, one sends, the owner evicts and rekeys",
			Args:  cobra.NoArgs,
			RunE:  runGroupDemo,
		},
	)
	return cmd
}

// demoStore and demoNotifier are the minimal collaborators chat.Chat
// needs; a real host backs these with its own ledger and UI.
type demoStore struct{ out *cobra.Command }

func (s demoStore) RecordUTXO(chatID string, info chatpkg.UtxoInfo) error {
	fmt.Fprintf(s.out.OutOrStdout(), "[store] recorded utxo for %s: %x\n", chatID, info.ID)
	return nil
}

type demoNotifier struct{ out *cobra.Command }

func (n demoNotifier) NotifyIncomingMessage(chatID string, senderPkey, body []byte) {
	fmt.Fprintf(n.out.OutOrStdout(), "[%s] %x: %s\n", chatID, senderPkey[:8], body)
}

func (n demoNotifier) NotifyRekeying(chatID string, newChainHint []byte) {
	fmt.Fprintf(n.out.OutOrStdout(), "[%s] rekeyed, hint=%x\n", chatID, newChainHint[:8])
}

func runChannelDemo(cmd *cobra.Command, _ []string) error {
	owner, err := identity.NewIdentity()
	if err != nil {
		return err
	}

	ownerChat := chat.NewChat(demoStore{cmd}, demoNotifier{cmd})
	subChat := chat.NewChat(demoStore{cmd}, demoNotifier{cmd})

	invite, err := ownerChat.CreateChannel("news", owner.SecretKey, owner.PublicKey)
	if err != nil {
		return err
	}
	encoded := invite.ToBase64()
	fmt.Fprintf(cmd.OutOrStdout(), "invite: %s\n", encoded)

	decoded, err := chat.ChannelInviteFromBase64(encoded)
	if err != nil {
		return err
	}
	if err := subChat.JoinChannel("news", decoded); err != nil {
		return err
	}

	out, err := ownerChat.NewMessage("news", []byte("first broadcast"))
	if err != nil {
		return err
	}

	if _, surfaced := subChat.ProcessIncoming(out); !surfaced {
		return fmt.Errorf("chatdemo: subscriber failed to read the broadcast")
	}
	ownerChat.ProcessIncoming(out)
	return nil
}

func runGroupDemo(cmd *cobra.Command, _ []string) error {
	owner, err := identity.NewIdentity()
	if err != nil {
		return err
	}
	alice, err := identity.NewIdentity()
	if err != nil {
		return err
	}
	bob, err := identity.NewIdentity()
	if err != nil {
		return err
	}

	ownerChat := chat.NewChat(demoStore{cmd}, demoNotifier{cmd})
	aliceChat := chat.NewChat(demoStore{cmd}, demoNotifier{cmd})
	bobChat := chat.NewChat(demoStore{cmd}, demoNotifier{cmd})

	groupOwner, err := chat.NewGroupOwnerInfo("friends", owner.SecretKey, owner.PublicKey)
	if err != nil {
		return err
	}
	if err := ownerChat.AddOwnedGroup(groupOwner); err != nil {
		return err
	}
	invite := groupOwner.Invite()

	if err := aliceChat.AddSubscribedGroup(chat.NewGroupSession("friends", alice.SecretKey, alice.PublicKey, invite)); err != nil {
		return err
	}
	if err := bobChat.AddSubscribedGroup(chat.NewGroupSession("friends", bob.SecretKey, bob.PublicKey, invite)); err != nil {
		return err
	}

	onboardAlice, err := groupOwner.OnboardMembers([]curve.PublicKey{alice.PublicKey})
	if err != nil {
		return err
	}
	for _, out := range onboardAlice {
		aliceChat.ProcessIncoming(out)
		bobChat.ProcessIncoming(out)
	}

	onboardBob, err := groupOwner.OnboardMembers([]curve.PublicKey{bob.PublicKey})
	if err != nil {
		return err
	}
	for _, out := range onboardBob {
		aliceChat.ProcessIncoming(out)
		bobChat.ProcessIncoming(out)
	}

	out, err := aliceChat.NewMessage("friends", []byte("hi from alice"))
	if err != nil {
		return err
	}
	ownerChat.ProcessIncoming(out)

	broadcast, err := ownerChat.NewMessage("friends", []byte("hello group"))
	if err != nil {
		return err
	}
	aliceChat.ProcessIncoming(broadcast)
	bobChat.ProcessIncoming(broadcast)

	rekeyOuts, err := groupOwner.EvictAndRekey([]curve.PublicKey{bob.PublicKey})
	if err != nil {
		return err
	}
	for _, out := range rekeyOuts {
		aliceChat.ProcessIncoming(out)
		bobChat.ProcessIncoming(out)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "bob evicted; subsequent owner traffic is unreadable to bob")
	return nil
}
